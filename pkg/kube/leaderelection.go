package kube

// LeaderElectionConfig is the top-level leaderElection config block. It is
// parsed into exporter.Config, but nothing in this module reads it: no
// leader election is performed. kube only owns the shape so
// exporter.Config can embed it without importing a client-go
// leader-election dependency.
type LeaderElectionConfig struct {
	Enabled          bool   `yaml:"enabled"`
	LeaderElectionID string `yaml:"leaderElectionID"`
}
