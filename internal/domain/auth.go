package domain

// Principal is the authenticated caller of an engine operation.
// PlatformAdmin mirrors the platform_admin token claim. Operators holding an active ADMIN_GLOBAL
// membership get the same exemption when the service resolves their actor.
type Principal struct {
	UserID        string
	PlatformAdmin bool
}
