package model

// OrgMessage is the organization snapshot published to Kafka.
type OrgMessage struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RepoMessage is the repository snapshot published to Kafka. It carries
// the full document so the consumer can upsert it as-is.
type RepoMessage struct {
	Repository
}
