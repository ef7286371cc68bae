package stage

// Health reports whether a pipeline stage can run, with detail on what is
// missing when it cannot.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy returns a ready Health record for the named stage.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy returns a not-ready Health record explaining why.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
