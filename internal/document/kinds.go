// Package document turns consultation transcripts into clinical documents
// using an LLM provider guarded by a circuit breaker.
package document

// Kind identifies one clinical document template.
type Kind string

const (
	KindSOAPNotes              Kind = "soap-notes"
	KindMedicalCertificate     Kind = "medical-certificate"
	KindPatientFriendlySummary Kind = "patient-friendly-summary"
	KindMentalHealthPlan       Kind = "mental-health-plan"
	KindReferralLetter         Kind = "referral-letter"
	KindFreeFormLetter         Kind = "free-form-letter"
	KindIssuesList             Kind = "issues-list"
	KindSmartGoals             Kind = "smart-goals"
	KindMentalHealthConsult    Kind = "mental-health-consult"
	KindCarersCertificate      Kind = "carers-certificate"
	KindLetterToReferrer       Kind = "letter-to-referring-doctor"
)

// Kinds lists every supported document kind.
func Kinds() []Kind {
	return []Kind{
		KindSOAPNotes,
		KindMedicalCertificate,
		KindPatientFriendlySummary,
		KindMentalHealthPlan,
		KindReferralLetter,
		KindFreeFormLetter,
		KindIssuesList,
		KindSmartGoals,
		KindMentalHealthConsult,
		KindCarersCertificate,
		KindLetterToReferrer,
	}
}

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	_, ok := kindPrompts[k]
	return ok
}

// kindPrompts holds the per-kind generation instruction injected into the
// prompt.
var kindPrompts = map[Kind]string{
	KindMedicalCertificate: `Generate a professional medical certificate based on the provided consultation notes. Include:
- Patient details
- Diagnosis
- Recommended rest period
- Any restrictions
- Doctor's signature line
Format it as an official medical document.`,

	KindPatientFriendlySummary: `Create a patient-friendly summary of the consultation. Use simple language, avoid medical jargon, and include:
- What was discussed
- Key findings
- Recommended treatments
- Follow-up instructions
Make it easy for the patient to understand.`,

	KindMentalHealthPlan: `Generate a comprehensive mental health treatment plan including:
- Current mental health status
- Identified issues
- Treatment goals
- Therapeutic interventions
- Medication recommendations if applicable
- Follow-up schedule
- Crisis resources`,

	KindReferralLetter: `Create a professional referral letter to a specialist including:
- Patient demographics
- Reason for referral
- Relevant medical history
- Current medications
- Specific questions for the specialist
- Urgency level`,

	KindFreeFormLetter: `Generate a professional clinical letter based on the consultation notes. Include all relevant clinical information in a narrative format suitable for correspondence.`,

	KindIssuesList: `Create a structured list of identified health issues from the consultation, organized by:
- Active problems
- Chronic conditions
- Recent concerns
- Risk factors
Each with brief descriptions and status.`,

	KindSmartGoals: `Generate SMART (Specific, Measurable, Achievable, Relevant, Time-bound) health goals based on the consultation. Include:
- 3-5 specific health goals
- Measurable outcomes
- Timeline for achievement
- Action steps for each goal`,

	KindMentalHealthConsult: `Create a detailed mental health consultation note including:
- Chief complaint
- History of present illness
- Mental status examination
- Assessment and diagnosis
- Treatment plan
- Medications
- Follow-up recommendations`,

	KindCarersCertificate: `Generate a carer's certificate or support letter including:
- Patient information
- Carer details
- Duration of care needed
- Type of care required
- Any special considerations
- Doctor's recommendation`,

	KindLetterToReferrer: `Create a professional letter to the referring doctor including:
- Consultation summary
- Findings and diagnosis
- Treatment provided
- Recommendations
- Follow-up plan
- Any urgent concerns`,

	KindSOAPNotes: `Generate comprehensive SOAP notes (Subjective, Objective, Assessment, Plan) including:
- Subjective: Patient's symptoms and history
- Objective: Examination findings and vital signs
- Assessment: Clinical impression and diagnosis
- Plan: Treatment and follow-up strategy`,
}
