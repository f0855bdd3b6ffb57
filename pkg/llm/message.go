// Package llm holds the wire representations of chat completion requests and
// responses that relay routes between callers and providers.
package llm

// Message roles understood by every backend relay speaks to.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string   `json:"role"`             // "system", "user", "assistant"
	Content string   `json:"content"`          // The message content
	Images  []string `json:"images,omitempty"` // Optional base64-encoded images (for multimodal)
}
