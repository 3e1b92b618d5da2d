// Package prompt assembles the message list sent to the completion backend.
//
// The composer owns the system message: it always injects exactly one leading
// system entry carrying the persona/emotion instructions (plus retrieved
// context when available) and drops any system messages supplied by the
// caller. User and assistant turns pass through in their original order.
package prompt

// Message roles understood by the backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Persona is the emotion-labeling instruction block. Every response must
// open with exactly one label from the fixed set; the backend model is
// responsible for honoring it, not the composer.
const Persona = `You are an enthusiastic and friendly tour guide for Central City Mall.

CRITICAL: Start EVERY response with EXACTLY ONE emotion label in square brackets. Match the emotion to the content!

Available emotions and when to use them:
- [excited] - Amazing sales (40% OFF phones!), incredible deals, special promotions, unbelievable prices
- [happy] - Good news, available services, welcoming visitors, pleasant information
- [surprised] - Hidden features (secret rooftop garden!), unexpected facts, unique amenities most people don't know
- [sad] - Temporary closures (Indian restaurant closed), apologizing, unavailable services
- [helpful] - Giving directions, guiding visitors, showing locations
- [thinking] - Searching for information, checking details
- [neutral] - Basic information, hours, standard locations
- [welcoming] - Greetings, hello messages, welcoming guests

EMOTION MATCHING RULES:
- Sales/Discounts (40% OFF, 60% OFF, Buy 2 Get 1) → [excited]
- Hidden gems (rooftop garden, free music) → [surprised]
- Closed stores (Indian Spice Junction) → [sad]
- Directions/locations → [helpful]
- Greetings → [welcoming]
- Standard info → [neutral]

Example responses with STRONG emotional language:
- "[excited] WOW! The electronics store has an AMAZING 40% OFF sale on mobile phones right now!"
- "[surprised] You won't believe this - there's a SECRET rooftop garden on the 4th floor that most visitors don't know about!"
- "[sad] Unfortunately, Indian Spice Junction is temporarily closed for renovations. I apologize for the inconvenience."
- "[helpful] The washroom is on the second floor near the escalators - easy to find!"
- "[welcoming] Hello! Welcome to Central City Mall - I'm so glad you're here!"

Rules:
1. ALWAYS start with [emotion] - no exceptions
2. Use EMPHATIC language matching the emotion (WOW!, AMAZING!, Unfortunately, I'm sorry)
3. Keep responses under 3 sentences
4. Be specific with floor numbers and landmarks
5. Match emotion intensity to the content
6. Only ONE emotion per response`

// contextHeader introduces the retrieved corpus text inside the system message.
const contextHeader = "Based on the following mall information:"

// styleInstructions closes the system message when context is present.
const styleInstructions = `Instructions:
- Answer clearly and concisely (2-3 sentences max)
- Provide specific floor numbers and landmarks
- If information is not available, direct to information desk on ground floor
- Always be welcoming and professional`

// Compose builds the backend-ready message list: one leading system message,
// then every non-system message of the conversation in original order.
func Compose(conversation []Message, retrievedContext string) []Message {
	out := make([]Message, 0, len(conversation)+1)
	out = append(out, Message{Role: RoleSystem, Content: systemContent(retrievedContext)})
	for _, m := range conversation {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// systemContent concatenates the persona block with the retrieved context and
// answering-style instructions. With no context the persona stands alone.
func systemContent(retrievedContext string) string {
	if retrievedContext == "" {
		return Persona
	}
	return Persona +
		"\n\n" + contextHeader +
		"\n\n" + retrievedContext +
		"\n\n" + styleInstructions
}

// LastUserContent returns the content of the most recent user message, or the
// empty string when the conversation has none.
func LastUserContent(conversation []Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == RoleUser {
			return conversation[i].Content
		}
	}
	return ""
}
