package app

// Entitlement decides whether a server may open panels and join queues.
// Licensing lives outside the bot; this is the only question it is asked.
type Entitlement interface {
	IsServerEntitled(serverID string) bool
}

// EntitlementFunc adapts a function, e.g. config.Config.Entitled.
type EntitlementFunc func(serverID string) bool

func (f EntitlementFunc) IsServerEntitled(serverID string) bool { return f(serverID) }
