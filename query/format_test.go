package query

import (
	"strings"
	"testing"
)

func answerResponse(lines ...string) Response {
	resp := Response{RequestID: "r1", Resolution: ResolutionAnswer}
	for _, l := range lines {
		resp.AnswerLines = append(resp.AnswerLines, AnswerLine{Text: l})
	}
	return resp
}

func TestFormatForSMS(t *testing.T) {
	resp := answerResponse("Apply at the ward office. [1]", "Bring an identity proof. [2]")
	got := FormatForSMS(resp)
	want := "Apply at the ward office. Bring an identity proof."
	if got != want {
		t.Errorf("FormatForSMS = %q, want %q", got, want)
	}
	if strings.Contains(got, "[") {
		t.Error("citation markers leaked into SMS text")
	}
}

func TestFormatForSMSTruncates(t *testing.T) {
	long := strings.Repeat("word ", 500) + "end. [1]"
	got := FormatForSMS(answerResponse(long))
	if len(got) > smsMaxLen {
		t.Errorf("len = %d, want <= %d", len(got), smsMaxLen)
	}
}

func TestFormatForSMSNonAnswer(t *testing.T) {
	resp := Response{Resolution: ResolutionRefusal, GuidanceKey: GuidanceMedical}
	if got := FormatForSMS(resp); got != "" {
		t.Errorf("FormatForSMS(refusal) = %q, want empty", got)
	}
}

func TestFormatForVoiceFirstTwoSentences(t *testing.T) {
	resp := answerResponse(
		"Apply at the ward office. [1]",
		"Bring an identity proof. [2]",
		"Processing takes thirty days. [2]",
	)
	got := FormatForVoice(resp)
	want := "Apply at the ward office. Bring an identity proof."
	if got != want {
		t.Errorf("FormatForVoice = %q, want %q", got, want)
	}
}

func TestFormatForVoiceNonAnswer(t *testing.T) {
	resp := Response{Resolution: ResolutionNotEnoughInfo}
	if got := FormatForVoice(resp); got != "" {
		t.Errorf("FormatForVoice = %q, want empty", got)
	}
}

func TestStripCitations(t *testing.T) {
	if got := stripCitations("Apply here. [12]  "); got != "Apply here." {
		t.Errorf("stripCitations = %q", got)
	}
	if got := stripCitations("No marker."); got != "No marker." {
		t.Errorf("stripCitations without marker = %q", got)
	}
}
