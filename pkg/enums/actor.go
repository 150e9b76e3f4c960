package enums

// Actor identifies who initiated a ledger mutation in history rows and events.
type Actor string

const (
	ActorSystem    Actor = "system"
	ActorAdmin     Actor = "admin"
	ActorScheduler Actor = "scheduler"
	ActorWebhook   Actor = "webhook"
)

func (a Actor) IsValid() bool {
	switch a {
	case ActorSystem, ActorAdmin, ActorScheduler, ActorWebhook:
		return true
	default:
		return false
	}
}
