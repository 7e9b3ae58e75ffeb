package model

// Language codes used by the emergency interceptor.
const (
	LangEnglish = "en"
	LangChinese = "zh"
)

// EmergencyVerdict is computed once per incoming user turn, before any
// retrieval happens. Language selects which canned notice is returned.
type EmergencyVerdict struct {
	Emergency bool
	Language  string
}

// GradeVerdict is the grader's binary relevance decision for one retrieval
// attempt. Reason keeps the raw justification for logging only.
type GradeVerdict struct {
	Relevant bool
	Reason   string
}

// SafetyAssessment is computed exactly once per final answer, immediately
// before the answer is returned. Fallback carries the deflection text when
// the answer was rejected.
type SafetyAssessment struct {
	Safe     bool
	Fallback string
}
