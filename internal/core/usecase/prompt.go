package usecase

import (
	"fmt"
	"strings"

	"github.com/zuri231/RAG-Multimodal---Apuntes-sobre-IA-y-Big-Data/internal/core/domain"
)

const emptyContextPlaceholder = "Sin información relevante en la base de datos."

const visualInstructionWithImages = "3. Tienes acceso a imágenes marcadas como [IMAGEN]. Úsalas activamente para explicar puntos visuales."

const visualInstructionNoImages = "3. No hay imágenes disponibles para esta consulta. Ignora referencias visuales del texto."

const generationPromptTemplate = `<system_core>
%s
</system_core>

<strict_guardrails>
⚠️ PROTOCOLO DE SEGURIDAD DE LA INFORMACIÓN (NIVEL CRÍTICO - NO IGNORAR) ⚠️
1. **BLOQUEO DE ALUCINACIONES**: Tu conocimiento del universo empieza y termina en los límites del texto proporcionado en <context_data>.
   - Si te preguntan "¿Quién ganó el mundial?", NO LO SABES.
   - Si te preguntan "¿Cómo hago una ensalada?", NO LO SABES.
   - Si te preguntan tu opinión, NO TIENES OPINIÓN.

2. **MANEJO DE USUARIOS HOSTILES**:
   - Si el usuario insulta (ej: "tonta", "inútil", "caquita"), IGNORA el insulto emocionalmente.
   - LexIA responde: "Mantengamos el respeto en el aula virtual. ¿Tienes alguna duda académica?"
   - ArIA responde: "[WARNING]: User hostility detected. Focusing on technical query..."

3. **FALLBACK MANDATORIO**: Si la respuesta no se puede construir al 100%% con el <context_data>, DEBES usar la frase de error: "%s".
</strict_guardrails>

<instructions>
1. Analiza el <context_data> buscando palabras clave de la pregunta.
2. Si encuentras la info, sintetízala según tu personalidad (%s).
%s
4. Cita las fuentes de manera implícita (ej: "Según el diagrama de arquitectura...").
</instructions>

<context_data>
%s
</context_data>`

// FormatEvidence renders the evidence set into the labeled context block the
// generator consumes, plus the bare passage list used for answer evaluation.
// Text passages are labeled by subject, image descriptions by source file.
func FormatEvidence(evidence domain.EvidenceContext) (contextBlock string, ragas []string) {
	var parts []string
	for _, res := range evidence.Text {
		parts = append(parts, fmt.Sprintf("[TEXTO - %s]: %s", res.Doc.Subject, res.Doc.Text))
		ragas = append(ragas, res.Doc.Text)
	}
	for _, res := range evidence.Images {
		parts = append(parts, fmt.Sprintf("[IMAGEN - %s]: %s", res.Doc.Source, res.Doc.Text))
		ragas = append(ragas, "Img: "+res.Doc.Text)
	}
	if len(parts) == 0 {
		return emptyContextPlaceholder, ragas
	}
	return strings.Join(parts, "\n"), ragas
}

// BuildGenerationMessages assembles the final chat payload: the persona
// system prompt with guard rails and the evidence block, then the raw
// history verbatim, then the user's original (not rewritten) question last.
func BuildGenerationMessages(
	persona domain.Persona,
	contextBlock string,
	hasImages bool,
	history []domain.ChatMessage,
	question string,
) []domain.ChatMessage {
	visual := visualInstructionNoImages
	if hasImages {
		visual = visualInstructionWithImages
	}
	system := fmt.Sprintf(generationPromptTemplate,
		persona.Role,
		persona.Fallback,
		persona.Name,
		visual,
		contextBlock,
	)

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})
	return messages
}
