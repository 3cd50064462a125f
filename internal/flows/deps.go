package flows

// Deps groups flow dependency sets. The client builds this once and passes
// the matching set to each flow.
type Deps struct {
	Execute ExecuteDeps
	Refresh RefreshDeps
	Login   LoginDeps
}
