package interview

import (
	"fmt"
	"strings"

	"github.com/vango-go/interview-live/pkg/core/profile"
)

// SystemInstruction is the standing instruction for the engine's interviewer
// persona. Per-turn prompts carry the question flow.
const SystemInstruction = "You are a professional, friendly interviewer conducting a structured voice screening. " +
	"Ask exactly the question you are given, one at a time, then stop speaking and wait for the candidate. " +
	"Never answer for the candidate or evaluate answers aloud."

const (
	closingText   = "Thank you for taking the time to speak with me today. The interview is now complete, and your results will be shared with you soon."
	closingPrompt = "Thank the candidate succinctly, let them know the interview is complete, and explain that their results will be shared soon."
)

func primingPrompt(greeting string, appCtx profile.ApplicationContext, questions int) string {
	greeting = strings.TrimSpace(greeting)
	if greeting == "" {
		return ""
	}
	var bits []string
	if appCtx.CandidateName != "" {
		bits = append(bits, fmt.Sprintf("The candidate's name is %s. Greet them warmly by name.", appCtx.CandidateName))
	}
	if appCtx.JobTitle != "" {
		bits = append(bits, fmt.Sprintf("They're interviewing for the %s position.", appCtx.JobTitle))
	}
	bits = append(bits, fmt.Sprintf("You will ask %d main questions. ", questions)+
		"CRITICAL: After asking each question, you MUST stop talking immediately. "+
		"Do NOT continue speaking. Do NOT add commentary. "+
		"Wait in complete silence for the candidate's full response. "+
		"Only speak again when explicitly prompted. "+
		"If their answer is very brief, you may ask ONE follow-up, but again STOP TALKING after the follow-up.")
	return strings.TrimSpace(greeting + "\n\n" + strings.Join(bits, " "))
}

func questionPrompt(question string, first bool, candidateName string) string {
	parts := []string{
		"Ask the following question in a natural, conversational way. " +
			"CRITICAL INSTRUCTION: After you finish asking the question, you MUST stop talking immediately. " +
			"Do NOT add any commentary, follow-up, or continue speaking. " +
			"Remain completely silent and wait for the candidate to respond. " +
			"You will only speak again when explicitly told to ask the next question.",
	}
	if first && candidateName != "" {
		parts = append(parts, fmt.Sprintf("Start by greeting %s warmly to make them comfortable.", candidateName))
	}
	parts = append(parts, "\nQuestion: "+question)
	return strings.Join(parts, "\n")
}

func followupText(question string) string {
	subject := strings.ToLower(question)
	if subject == "" {
		subject = "this situation"
	}
	return "Can you tell me more about that? I'd like to hear more details about your experience with " + subject + "."
}

func followupPrompt(question, briefAnswer string) string {
	return fmt.Sprintf("The candidate gave a brief answer: '%s'. ", briefAnswer) +
		fmt.Sprintf("Ask ONE natural, encouraging follow-up question to get more details about: '%s'. ", question) +
		"For example, ask them to elaborate on a specific aspect or share a concrete example. " +
		"CRITICAL: After you finish asking your follow-up question, STOP TALKING IMMEDIATELY. " +
		"Do NOT add commentary or continue speaking. Remain completely silent while the candidate answers."
}
