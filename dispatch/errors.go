package dispatch

type (
	MissingParameters struct {
		Name string
	}

	InvalidParameters struct {
		Name string
	}

	UndefinedHook struct{}

	LockedHook struct{}

	UnhandledHook struct{}
)

func (MissingParameters) Error() string  { return "Missing parameters" }
func (MissingParameters) Reason() string { return "Missing parameters" }

func (m MissingParameters) Is(target error) bool {
	_, ok := target.(MissingParameters)
	return ok
}

func (InvalidParameters) Error() string  { return "Invalid parameters" }
func (InvalidParameters) Reason() string { return "Invalid parameters" }

func (i InvalidParameters) Is(target error) bool {
	_, ok := target.(InvalidParameters)
	return ok
}

func (UndefinedHook) Error() string  { return "Undefined hook" }
func (UndefinedHook) Reason() string { return "Undefined hook" }

func (LockedHook) Error() string  { return "Locked hook" }
func (LockedHook) Reason() string { return "Locked hook" }

func (UnhandledHook) Error() string  { return "Unhandled hook" }
func (UnhandledHook) Reason() string { return "Unhandled hook" }
