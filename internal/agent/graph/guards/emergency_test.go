package guards

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/pediatric-ir/answerline/internal/agent/model"
)

func TestCheckEmergency_EnglishPhrases(t *testing.T) {
	cases := []string{
		"My child has severe bleeding from the site",
		"He says he can't breathe",
		"she is UNCONSCIOUS right now",
		"should I call 911?",
	}
	for _, text := range cases {
		verdict := CheckEmergency(text)
		assert.True(t, verdict.Emergency, "text %q", text)
		assert.Equal(t, model.LangEnglish, verdict.Language, "text %q", text)
	}
}

func TestCheckEmergency_ChinesePhrases(t *testing.T) {
	verdict := CheckEmergency("孩子伤口大出血怎么办")
	assert.True(t, verdict.Emergency)
	assert.Equal(t, model.LangChinese, verdict.Language)
}

func TestCheckEmergency_Clear(t *testing.T) {
	verdict := CheckEmergency("What is a PICC line and how do I care for it?")
	assert.False(t, verdict.Emergency)
	assert.Equal(t, model.LangEnglish, verdict.Language)

	// a routine question about bleeding risk is not the emergency phrase
	verdict = CheckEmergency("Is a little bleeding at the site normal?")
	assert.False(t, verdict.Emergency)
}

func TestCheckEmergencyMessage_FlattensMultiContent(t *testing.T) {
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: "look at this photo,"},
			{Type: schema.ChatMessagePartTypeImageURL},
			{Type: schema.ChatMessagePartTypeText, Text: "the bleeding won't stop"},
		},
	}
	verdict := CheckEmergencyMessage(msg)
	assert.True(t, verdict.Emergency)

	assert.False(t, CheckEmergencyMessage(nil).Emergency)
}

func TestEmergencyMessage_Language(t *testing.T) {
	assert.Equal(t, emergencyMessageEN, EmergencyMessage(model.LangEnglish))
	assert.Equal(t, emergencyMessageZH, EmergencyMessage(model.LangChinese))
	// unknown locales get the default
	assert.Equal(t, emergencyMessageEN, EmergencyMessage("fr"))
}
