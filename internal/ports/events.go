package ports

// EventBus diffuse des notifications vers les contextes observateurs.
// Livraison au plus une fois: un abonné absent ou trop lent perd l'événement,
// sans file d'attente ni nouvel essai. Les observateurs relisent le store.
type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe() (ch <-chan Event, cancel func())
}

type Event struct {
	ID      string
	Topic   string
	Payload []byte
}

// Topics publiés par le cache et le synchroniseur de sélection.
const (
	TopicFunscriptCached  = "funscript.cached"
	TopicFunscriptEvicted = "funscript.evicted"
	TopicFunscriptRemoved = "funscript.removed"
	TopicCacheCleared     = "cache.cleared"
	TopicSelection        = "funscript.selection"
	TopicSelectionCleared = "funscript.selection.cleared"
	TopicSelectionAck     = "funscript.selection.ack"
	TopicPlayer           = "player.command"
	TopicSettingsUpdated  = "settings.updated"
)
