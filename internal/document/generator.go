package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/s4nfs/mediscribe/internal/resilience"
	"github.com/s4nfs/mediscribe/pkg/provider/llm"
)

const systemPrompt = `You are a professional medical documentation assistant. Generate accurate, professional clinical documents based on the provided information.
Ensure all documents are compliant with medical documentation standards and include appropriate clinical detail.`

const soapPrompt = `You are a medical documentation assistant. Based on the following consultation transcript, generate a structured SOAP note (Subjective, Objective, Assessment, Plan).`

const soapFormat = `Generate a SOAP note in the following JSON format:
{
  "subjective": "Patient's reported symptoms and concerns",
  "objective": "Observable findings and measurements",
  "assessment": "Medical assessment and diagnosis",
  "plan": "Treatment plan and follow-up recommendations"
}

Be concise, professional, and medically accurate. Only return the JSON object, no additional text.`

// Context carries the patient and clinic details interpolated into prompts.
// Empty optional fields render as "Unknown" or "None" placeholders.
type Context struct {
	PatientName      string
	PatientAge       int
	PatientGender    string
	MedicalHistory   string
	Allergies        string
	Medications      string
	Diagnosis        string
	DoctorName       string
	ClinicName       string
	ConsultationType string
}

// Request describes one document generation.
type Request struct {
	Kind       Kind
	Transcript string
	Context    Context
}

// Generator produces clinical documents through an LLM provider. Outbound
// calls run inside a circuit breaker so a failing provider degrades fast
// instead of queueing timeouts.
type Generator struct {
	provider llm.Provider
	breaker  *resilience.Breaker
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(g *Generator) { g.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// NewGenerator creates a Generator backed by provider.
func NewGenerator(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	if g.breaker == nil {
		g.breaker = resilience.New(resilience.Config{
			Name:     "document-generator",
			Cooldown: 30 * time.Second,
			Logger:   g.logger,
		})
	}
	return g
}

// Generate produces the document for req.Kind from the transcript and
// context. The raw model output is returned verbatim.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	instruction, ok := kindPrompts[req.Kind]
	if !ok {
		return "", fmt.Errorf("document: unknown kind %q", req.Kind)
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("document: transcript must not be empty")
	}

	prompt := fmt.Sprintf("%s\n\nContext:\n%s\n\nGenerate the document content now. Be professional, accurate, and thorough.",
		instruction, formatContext(req.Context, req.Transcript))

	start := time.Now()
	var content string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Prompt:       prompt,
		})
		if err != nil {
			return err
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("document: generate %s: %w", req.Kind, err)
	}

	g.logger.Info("document generated",
		"kind", req.Kind,
		"duration", time.Since(start),
		"contentLength", len(content),
	)
	return content, nil
}

// GenerateSOAP produces a structured SOAP note from the transcript. Parsing
// is lenient; see [ParseSOAP].
func (g *Generator) GenerateSOAP(ctx context.Context, transcript string, dctx Context) (SOAPNote, error) {
	if strings.TrimSpace(transcript) == "" {
		return SOAPNote{}, fmt.Errorf("document: transcript must not be empty")
	}

	var b strings.Builder
	b.WriteString(soapPrompt)
	b.WriteString("\n\n")
	if pc := patientContext(dctx); pc != "" {
		b.WriteString(pc)
		b.WriteString("\n")
	}
	if dctx.ConsultationType != "" {
		fmt.Fprintf(&b, "Consultation Type: %s\n\n", dctx.ConsultationType)
	}
	fmt.Fprintf(&b, "Transcript:\n%s\n\n%s", transcript, soapFormat)

	var text string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := g.provider.Complete(ctx, llm.CompletionRequest{Prompt: b.String()})
		if err != nil {
			return err
		}
		text = resp.Content
		return nil
	})
	if err != nil {
		return SOAPNote{}, fmt.Errorf("document: generate soap: %w", err)
	}

	return ParseSOAP(text), nil
}

// formatContext renders the prompt context block for template generation.
func formatContext(c Context, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient Information:\n- Name: %s\n", orDefault(c.PatientName, "Unknown"))
	if c.PatientAge > 0 {
		fmt.Fprintf(&b, "- Age: %d\n", c.PatientAge)
	} else {
		b.WriteString("- Age: Unknown\n")
	}
	fmt.Fprintf(&b, "- Gender: %s\n", orDefault(c.PatientGender, "Not specified"))
	fmt.Fprintf(&b, "- Allergies: %s\n", orDefault(c.Allergies, "None documented"))
	fmt.Fprintf(&b, "- Medical History: %s\n", orDefault(c.MedicalHistory, "Not provided"))
	fmt.Fprintf(&b, "- Current Medications: %s\n", orDefault(c.Medications, "None"))
	fmt.Fprintf(&b, "\nConsultation Notes:\n%s\n", transcript)
	if c.Diagnosis != "" {
		fmt.Fprintf(&b, "\nDiagnosis: %s", c.Diagnosis)
	}
	if c.DoctorName != "" {
		fmt.Fprintf(&b, "\nDoctor: %s", c.DoctorName)
	}
	if c.ClinicName != "" {
		fmt.Fprintf(&b, "\nClinic: %s", c.ClinicName)
	}
	return b.String()
}

// patientContext renders the patient block for SOAP prompts, or "" when no
// patient details are known.
func patientContext(c Context) string {
	if c.PatientName == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", c.PatientName)
	if c.PatientAge > 0 {
		fmt.Fprintf(&b, "- Age: %d\n", c.PatientAge)
	}
	if c.PatientGender != "" {
		fmt.Fprintf(&b, "- Gender: %s\n", c.PatientGender)
	}
	fmt.Fprintf(&b, "- Medical History: %s\n", orDefault(c.MedicalHistory, "None recorded"))
	fmt.Fprintf(&b, "- Allergies: %s\n", orDefault(c.Allergies, "None recorded"))
	fmt.Fprintf(&b, "- Current Medications: %s\n", orDefault(c.Medications, "None recorded"))
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
