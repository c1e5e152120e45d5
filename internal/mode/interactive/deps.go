// ABOUTME: Dependency injection struct for the interactive chat view
// ABOUTME: The stream manager, the reconciled message view, the markdown pipeline and the model selection

package interactive

import (
	"time"

	"github.com/mauromedda/pi-chat-stream/pkg/reconcile"
	"github.com/mauromedda/pi-chat-stream/pkg/render"
	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

// DefaultTickInterval is how often the live reply is re-rendered while
// streaming.
const DefaultTickInterval = 50 * time.Millisecond

// Deps bundles the dependencies of the interactive view.
type Deps struct {
	Manager *stream.Manager
	// View holds the conversation as rendered: authoritative messages plus
	// the optimistic pairs the Manager's sink adds on submit.
	View     *reconcile.View
	Pipeline *render.Pipeline

	Model    string
	Provider string
	// ConversationID continues an existing conversation; empty starts one.
	ConversationID string

	TickInterval time.Duration
	Version      string
}
