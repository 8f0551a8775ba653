package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// Registered codes used across the service.
const (
	CodeConfigRead      = "A001"
	CodeConfigParse     = "A002"
	CodeConfigEnv       = "A003"
	CodeConfigInvalid   = "A004"
	CodeUpstreamRequest = "A020"
	CodeUpstreamStatus  = "A021"
	CodeUpstreamDecode  = "A022"
	CodeSubmitRejected  = "A023"
	CodeValidation      = "A040"
	CodeUnknownForm     = "A041"
	CodeUnknownField    = "A042"
	CodeFieldKind       = "A043"
	CodeBadMessage      = "A060"
	CodeSubmitPending   = "A061"
	CodeNotReady        = "A062"
)

var registry = map[string]Template{
	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Cannot read configuration file",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Configuration file is not valid JSON",
	},
	CodeConfigEnv: {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Configuration is invalid",
	},
	CodeUpstreamRequest: {
		Category: CategoryUpstream,
		Message:  "CRM request failed",
		Detail:   "The CRM could not be reached.",
	},
	CodeUpstreamStatus: {
		Category: CategoryUpstream,
		Message:  "CRM returned an error",
	},
	CodeUpstreamDecode: {
		Category: CategoryUpstream,
		Message:  "CRM response could not be decoded",
	},
	CodeSubmitRejected: {
		Category: CategoryValidation,
		Message:  "Đăng ký không thành công. Vui lòng thử lại.",
	},
	CodeValidation: {
		Category: CategoryValidation,
		Message:  "Vui lòng kiểm tra lại thông tin.",
	},
	CodeUnknownForm: {
		Category: CategoryNotFound,
		Message:  "Unknown form",
	},
	CodeUnknownField: {
		Category: CategoryProtocol,
		Message:  "Unknown field",
	},
	CodeFieldKind: {
		Category: CategoryProtocol,
		Message:  "Value does not match the field kind",
	},
	CodeBadMessage: {
		Category: CategoryProtocol,
		Message:  "Malformed session message",
	},
	CodeSubmitPending: {
		Category: CategoryProtocol,
		Message:  "A submission is already in progress",
	},
	CodeNotReady: {
		Category: CategoryProtocol,
		Message:  "Form is still loading",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
