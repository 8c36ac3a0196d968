package events

// SubscribeToChannel forwards events of type T into ch. Events are dropped
// when ch is full so a slow reader never stalls the publisher.
func SubscribeToChannel[T Event](b *Bus, ch chan<- any) func() {
	return Subscribe(b, func(ev T) {
		select {
		case ch <- ev:
		default:
		}
	})
}

// SubscribeDiagnostics forwards every diagnostic event except log entries
// into ch.
func SubscribeDiagnostics(b *Bus, ch chan<- any) func() {
	cancels := []func(){
		SubscribeToChannel[FrameProcessed](b, ch),
		SubscribeToChannel[ChannelCreated](b, ch),
		SubscribeToChannel[PostFailed](b, ch),
		SubscribeToChannel[PayloadReset](b, ch),
		SubscribeToChannel[ScenarioReloaded](b, ch),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
