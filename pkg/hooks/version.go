package hooks

import (
	"fmt"
	"net/http"

	"github.com/morezero/operations-host/pkg/reqctx"
	"github.com/morezero/operations-host/pkg/semver"
)

// VersionHeader carries a client's API version requirement.
const VersionHeader = "X-Api-Version"

// VersionGate rejects requests whose X-Api-Version requirement the host
// version does not satisfy. Requests without the header pass.
type VersionGate struct {
	version string
}

// NewVersionGate creates a VersionGate for hostVersion.
func NewVersionGate(hostVersion string) (*VersionGate, error) {
	canonical, err := semver.Canonical(hostVersion)
	if err != nil {
		return nil, err
	}
	return &VersionGate{version: canonical}, nil
}

// Before implements PreHook.
func (g *VersionGate) Before(rc *reqctx.RequestContext) (*Reply, error) {
	req := rc.Header.Get(VersionHeader)
	if req == "" {
		return nil, nil
	}
	ok, err := semver.Satisfies(g.version, req)
	if err != nil {
		return NewErrorReply(http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid %s %q", VersionHeader, req), rc.CorrelationID), nil
	}
	if !ok {
		reply := NewErrorReply(http.StatusPreconditionFailed, CodeVersion,
			fmt.Sprintf("host version %s does not satisfy %s", g.version, req), rc.CorrelationID)
		reply.Header = http.Header{VersionHeader: []string{g.version}}
		return reply, nil
	}
	return nil, nil
}
