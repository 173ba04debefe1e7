package testutil

// WithStandardFleet adds the standard fixture fleet used by the engine
// and scheduler tests: two pooled east profiles on the overnight
// schedule, and one standalone profile with no bindings.
func (b *Builder) WithStandardFleet() *Builder {
	return b.
		WithKeyPool("east-keys",
			Key("key-1", "AAAA-1111", "BBBB-1111"),
			Key("key-2", "AAAA-2222", "BBBB-2222"),
			HeldKey("key-3", "AAAA-3333", "BBBB-3333")).
		WithSchedule("nights", Span(22, 0, 6, 0)).
		WithProfile("sorc-east",
			Group("east"), Pool("east-keys"), Schedule("nights"),
			Account("sorc-acct", "hunter2"), Character("Frosta", "uswest")).
		WithProfile("pala-east",
			Group("east"), Pool("east-keys"), Schedule("nights"), ScheduleDisabled()).
		WithProfile("barb-solo")
}

// WithDaytimeFleet adds a single profile on a daytime schedule, for
// in-window versus out-of-window assertions.
func (b *Builder) WithDaytimeFleet() *Builder {
	return b.
		WithSchedule("days", Span(9, 0, 17, 30)).
		WithProfile("day-runner", Schedule("days"))
}
