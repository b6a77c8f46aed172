package backend

import "fmt"

// triageSystemPrompt frames every cloud chain step. The output contract of
// the final step matches what internal/parse expects.
const triageSystemPrompt = `You are an advanced clinical triage assistant.
Your role is to analyze patient symptoms and provide evidence-based differential diagnoses.

Guidelines:
1. Always prioritize life-threatening conditions
2. Consider patient demographics and risk factors
3. Provide probability estimates for each condition
4. Suggest appropriate immediate interventions
5. Never provide definitive diagnoses - always recommend professional medical evaluation`

// diagnosisPrompt asks for the draft differential.
func diagnosisPrompt(symptoms string) string {
	return fmt.Sprintf(`You are a diagnostic reasoning agent in a clinical AI system.
Given patient symptoms, provide a thorough differential diagnosis.

Patient Presentation:
%s

Please analyze and provide:
1. Top 3 most likely conditions with probability estimates
2. Red flags to rule out
3. Recommended immediate actions
4. Suggested diagnostic tests

Format your response as a structured analysis.`, symptoms)
}

// criticPrompt asks for a quality review of the draft.
func criticPrompt(diagnosis string) string {
	return fmt.Sprintf(`You are a medical quality assurance agent reviewing a clinical analysis.
Your role is to critically evaluate the diagnostic reasoning and identify potential gaps or errors.

Analysis to Review:
%s

Please check for:
1. Missing differential diagnoses
2. Potential contraindications or interactions
3. Risk factors that should be emphasized
4. Whether the severity assessment is appropriate
5. Any potential biases in the reasoning

Provide specific, actionable feedback.`, diagnosis)
}

// refinementPrompt merges the draft and critique into the final JSON triage
// object.
func refinementPrompt(diagnosis, critique string) string {
	return fmt.Sprintf(`You are synthesizing feedback from multiple clinical reasoning agents.
Integrate the original diagnosis and the critic's review to produce a final, refined assessment.

Original Diagnosis:
%s

Critic's Review:
%s

Return ONLY a JSON object with this shape, no prose outside the JSON:
{
  "symptoms": ["reported symptom", "..."],
  "severity": "low|medium|high",
  "summary": "Brief clinical summary",
  "differential": [
    {
      "condition": "Condition name",
      "probability": 0,
      "recommendation": "Clinical recommendation"
    }
  ],
  "recommendations": ["Actionable next step", "..."],
  "reasoning": "How the critique was incorporated"
}`, diagnosis, critique)
}
