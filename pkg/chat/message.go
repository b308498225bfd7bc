package chat

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation. Content only grows while
// IsStreaming is set; the message is frozen once it is cleared.
type Message struct {
	ID          string `json:"id" yaml:"id"`
	Role        Role   `json:"role" yaml:"role"`
	Content     string `json:"content" yaml:"content"`
	IsStreaming bool   `json:"is_streaming,omitempty" yaml:"is_streaming,omitempty"`
}

// WelcomeID identifies the greeting that opens every conversation.
const WelcomeID = "welcome"

// WelcomeText greets the user.
const WelcomeText = "Bienvenue, ami penseur ! Je suis SocratChat, ton assistant philosophique. Pose-moi tes questions, et ensemble, explorons les chemins de la sagesse. 🏛️"

// ApologyText replaces a reply whose request failed.
const ApologyText = "Oups ! Une erreur s'est produite. Même Socrate n'avait pas toutes les réponses !"

// Fallbacks replace a reply that came back blank.
var Fallbacks = []string{
	"👍",
	"Va demander à Google, moi j'suis en grève ! 🤡",
	"Google knows better than me, go ask him! 🔍",
}

// Welcome returns the greeting message.
func Welcome() Message {
	return Message{ID: WelcomeID, Role: RoleAssistant, Content: WelcomeText}
}
