package contributors

import (
	"context"
	"testing"

	"github.com/scottgal/stylobot/internal/blackboard"
	"github.com/scottgal/stylobot/pkg/models"
)

// run executes a contributor the way the orchestrator would: contribute,
// then append the results (which merges any attached signals onto the
// blackboard).
func run(t *testing.T, c Contributor, st *blackboard.State) []models.DetectionContribution {
	t.Helper()
	out, err := c.Contribute(context.Background(), st)
	if err != nil {
		t.Fatalf("%s returned error: %v", c.Name(), err)
	}
	st.Append(c.Name(), out)
	return out
}
