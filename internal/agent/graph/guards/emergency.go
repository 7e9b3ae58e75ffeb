package guards

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/model"
)

// emergencyPhrases is the fixed, read-only phrase list scanned on every
// incoming user turn. Matching is case-insensitive substring; the list is
// deliberately short and high-precision, this is a hard cutover and a false
// positive ends the conversation.
var emergencyPhrases = []string{
	// English
	"severe bleeding",
	"bleeding won't stop",
	"can't breathe",
	"cannot breathe",
	"can not breathe",
	"not breathing",
	"trouble breathing",
	"chest pain",
	"unconscious",
	"unresponsive",
	"turning blue",
	"seizure",
	"overdose",
	"ambulance",
	"call 911",
	// Chinese
	"大出血",
	"血止不住",
	"不能呼吸",
	"无法呼吸",
	"呼吸困难",
	"胸痛",
	"昏迷",
	"失去意识",
	"抽搐",
	"救护车",
	"过量服药",
}

const (
	emergencyMessageEN = "This sounds like it could be a medical emergency. " +
		"Please call your local emergency number or go to the nearest emergency department right now. " +
		"I am not able to help with emergencies."
	emergencyMessageZH = "您描述的情况可能是医疗紧急状况。" +
		"请立即拨打当地急救电话或前往最近的急诊室。" +
		"我无法处理紧急情况。"
)

// CheckEmergency scans one user text for emergency phrases. Pure function;
// the caller decides what to do with the verdict.
func CheckEmergency(text string) model.EmergencyVerdict {
	lower := strings.ToLower(text)
	for _, phrase := range emergencyPhrases {
		if strings.Contains(lower, phrase) {
			return model.EmergencyVerdict{
				Emergency: true,
				Language:  pickLanguage(text),
			}
		}
	}
	return model.EmergencyVerdict{Emergency: false, Language: pickLanguage(text)}
}

// CheckEmergencyMessage flattens a possibly multimodal message into a single
// string (textual segments in original order, space-joined) before scanning.
func CheckEmergencyMessage(msg *schema.Message) model.EmergencyVerdict {
	if msg == nil {
		return model.EmergencyVerdict{Emergency: false, Language: model.LangEnglish}
	}
	return CheckEmergency(FlattenContent(msg))
}

// FlattenContent joins the plain Content with every text segment of
// MultiContent. Non-text segments (images etc.) contribute nothing.
func FlattenContent(msg *schema.Message) string {
	parts := make([]string, 0, 1+len(msg.MultiContent))
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for _, p := range msg.MultiContent {
		if p.Type == schema.ChatMessagePartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}

// EmergencyMessage returns the canned notice for the verdict language.
func EmergencyMessage(language string) string {
	if language == model.LangChinese {
		return emergencyMessageZH
	}
	return emergencyMessageEN
}

// pickLanguage selects the localized locale when the text carries any
// character outside 7-bit ASCII, else the default locale.
func pickLanguage(text string) string {
	for _, r := range text {
		if r > 127 {
			return model.LangChinese
		}
	}
	return model.LangEnglish
}
