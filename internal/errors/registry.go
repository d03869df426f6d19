package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// Registered error codes.
const (
	CodeProtocolIncompatible   = "M001"
	CodeConnectFailure         = "M002"
	CodeMotionFailure          = "M003"
	CodeBroadcastFailure       = "M004"
	CodeRoutingDeliveryFailure = "M005"
	CodeDisconnectFailure      = "M006"
	CodeRenderFailure          = "M007"
	CodeSubscribeFailure       = "M008"

	CodeInvalidMessage     = "M020"
	CodeUnknownMessageType = "M021"
	CodeServerBusy         = "M022"

	CodeInvalidConfig   = "M040"
	CodeMissingConfig   = "M041"
	CodeInvalidPort     = "M042"
	CodeInvalidDuration = "M043"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Session Errors (M001-M019)
	// ============================================

	CodeProtocolIncompatible: {
		Category: CategoryProtocol,
		Message:  "Protocol version mismatch",
		Detail:   "The client declared a protocol version that does not exactly match the server's. The connection is rejected before any component is created.",
		DocURL:   "https://motion.vango.dev/docs/errors/M001",
	},
	CodeConnectFailure: {
		Category: CategorySession,
		Message:  "Component failed to connect",
		Detail:   "Deserializing the component, running its connect hook, or installing its broadcast routing failed. The subscription is rejected.",
		DocURL:   "https://motion.vango.dev/docs/errors/M002",
	},
	CodeMotionFailure: {
		Category: CategoryDispatch,
		Message:  "Motion failed",
		Detail:   "A client operation returned an error or panicked. No render was sent; the session stays connected.",
		DocURL:   "https://motion.vango.dev/docs/errors/M003",
	},
	CodeBroadcastFailure: {
		Category: CategoryDispatch,
		Message:  "Broadcast handling failed",
		Detail:   "The component's broadcast handler returned an error or panicked. No render was sent; the session stays connected.",
		DocURL:   "https://motion.vango.dev/docs/errors/M004",
	},
	CodeRoutingDeliveryFailure: {
		Category: CategoryRouting,
		Message:  "Broadcast delivery failed",
		Detail:   "A routed broadcast handler failed. The failure was contained at the delivery callback and did not reach the pub/sub substrate.",
		DocURL:   "https://motion.vango.dev/docs/errors/M005",
	},
	CodeDisconnectFailure: {
		Category: CategorySession,
		Message:  "Component failed to disconnect",
		Detail:   "The component's disconnect hook returned an error or panicked. Session teardown completed regardless.",
		DocURL:   "https://motion.vango.dev/docs/errors/M006",
	},
	CodeRenderFailure: {
		Category: CategoryRender,
		Message:  "Render failed",
		Detail:   "Computing the render fingerprint, rendering, or transmitting the output failed. The next successful dispatch will retry.",
		DocURL:   "https://motion.vango.dev/docs/errors/M007",
	},
	CodeSubscribeFailure: {
		Category: CategoryRouting,
		Message:  "Subscription failed",
		Detail:   "The pub/sub substrate refused a subscription. The topic will be retried on the next routing update.",
		DocURL:   "https://motion.vango.dev/docs/errors/M008",
	},

	// ============================================
	// Wire Errors (M020-M039)
	// ============================================

	CodeInvalidMessage: {
		Category: CategoryProtocol,
		Message:  "Invalid message format",
		Detail:   "The received message could not be decoded as a JSON envelope.",
		DocURL:   "https://motion.vango.dev/docs/errors/M020",
	},
	CodeUnknownMessageType: {
		Category: CategoryProtocol,
		Message:  "Unknown message type",
		Detail:   "The message type is not recognized by the server.",
		DocURL:   "https://motion.vango.dev/docs/errors/M021",
	},
	CodeServerBusy: {
		Category: CategorySession,
		Message:  "Server busy",
		Detail:   "The maximum number of concurrent sessions has been reached.",
		DocURL:   "https://motion.vango.dev/docs/errors/M022",
	},

	// ============================================
	// Configuration Errors (M040-M059)
	// ============================================

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid motion.json",
		Detail:   "The motion.json configuration file is malformed.",
		DocURL:   "https://motion.vango.dev/docs/errors/M040",
	},
	CodeMissingConfig: {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   "https://motion.vango.dev/docs/errors/M041",
	},
	CodeInvalidPort: {
		Category: CategoryConfig,
		Message:  "Invalid port number",
		Detail:   "The configured port number is outside 1-65535.",
		DocURL:   "https://motion.vango.dev/docs/errors/M042",
	},
	CodeInvalidDuration: {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "A duration value could not be parsed. Use Go duration syntax such as \"10s\" or \"1m30s\".",
		DocURL:   "https://motion.vango.dev/docs/errors/M043",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
