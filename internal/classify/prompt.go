package classify

import (
	"fmt"
	"strings"
)

// systemInstruction is the fixed extraction instruction sent with every email.
const systemInstruction = `You are an AI assistant that analyzes emails for job application information. Always respond with valid JSON.`

// maxBodyChars bounds the email body included in the prompt. Bodies beyond
// this add token cost without improving the signal.
const maxBodyChars = 8000

// buildPrompt constructs the extraction prompt for one email.
func buildPrompt(subject, body string) string {
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\n")
	sb.WriteString("Analyze this email and determine if it's job application related. If it is, extract relevant information.\n\n")
	sb.WriteString(fmt.Sprintf("Email Subject: %s\n", subject))
	sb.WriteString(fmt.Sprintf("Email Content: %s\n\n", body))
	sb.WriteString(`Return a JSON object with:
- isJobRelated: boolean (true if this email is related to job applications)
- company: string (company name if found)
- position: string (job position if found)
- status: string (one of: "applied", "interview", "offer", "rejected", "withdrawn" - based on email content)
- portal: string (application portal or job board if identifiable, e.g. "LinkedIn", "Greenhouse")
- confidence: number (0-1, how confident you are this is job-related)

Only return the JSON object, no other text.
`)
	return sb.String()
}
