package summary

import (
	"encoding/json"
	"strings"
)

const promptHeader = `You are a healthcare data analysis assistant. Analyze the following patient vital signs data and provide a clear, informative, and non-diagnostic summary.

IMPORTANT RULES:
- Do NOT provide medical diagnoses
- Do NOT recommend specific treatments or medications
- Use simple, easy-to-understand language
- Focus on trends, patterns, and observations
- Be encouraging and supportive in tone
- Mention if values are within normal ranges when appropriate
`

const promptFooter = `
Provide a comprehensive but concise analysis (3-4 paragraphs) that includes:
1. Overall health trends: Are the vital signs generally stable, improving, or showing changes over time?
2. Pattern analysis: Are there any noticeable patterns (e.g., consistent values, fluctuations, trends)?
3. Range observations: How do the values compare to typical healthy ranges (mention ranges but don't diagnose)?
4. General insights: What does this data suggest about the patient's health monitoring? (Keep it informational only)

Format your response in clear paragraphs. Use friendly, accessible language that a patient can understand. End with a reminder that this is for informational purposes only and that they should consult healthcare professionals for medical advice.`

func BuildPrompt(v *Vitals, s Stats) (string, error) {
	vitals, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	stats, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\nVITAL SIGNS DATA:\n")
	b.Write(vitals)
	b.WriteString("\n\nSTATISTICAL SUMMARY:\n")
	b.Write(stats)
	b.WriteString("\n")
	b.WriteString(promptFooter)
	return b.String(), nil
}
