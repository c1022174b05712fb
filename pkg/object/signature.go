package object

// CommitSigningPayload returns the canonical bytes a commit signature
// covers: the commit serialized with its signature field cleared. Signing
// and verification both derive the payload this way, so the stored
// signature never signs itself.
func CommitSigningPayload(c *CommitObj) ([]byte, error) {
	unsigned := *c
	unsigned.Signature = ""
	return MarshalCommit(&unsigned)
}
