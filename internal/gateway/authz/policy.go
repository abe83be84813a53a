package authz

import (
	"github.com/edgerun/ipcbus/internal/ggerr"
	"github.com/edgerun/ipcbus/internal/gobj"
)

// OperationInfo identifies the caller and operation an authorization check
// is being performed for, matching the source's GglIpcOperationInfo.
type OperationInfo struct {
	Component string // calling component's registered name
	Service   string // IPC namespace, e.g. "aws.greengrass.ipc.mqttproxy"
	Operation string // modeled operation name, e.g. "aws.greengrass#PublishToTopic"
}

// ConfigReader resolves the access-control policy map configured for one
// component/service pair. Implemented in process by internal/config.Tree
// and over the gg_config bus interface by internal/gateway's
// busConfigReader; kept as an interface here so authz can be tested without
// a running config daemon.
type ConfigReader interface {
	ReadAccessControl(component, service string) (gobj.Object, error)
}

// Authorize implements ggl_ipc_auth: read the component's configured
// policies for info.Service, then check whether any policy both names
// info.Operation (or "*") and has a resource pattern matching resource.
func Authorize(reader ConfigReader, info OperationInfo, resource string, matcher ResourceMatcher) error {
	policies, err := reader.ReadAccessControl(info.Component, info.Service)
	if err != nil {
		return err
	}
	if policies.Kind != gobj.KindMap {
		return ggerr.New(ggerr.Config, "accessControl configuration is not a map")
	}

	for _, kv := range policies.Map {
		policy := kv.Value
		if policy.Kind != gobj.KindMap {
			// A malformed individual policy doesn't block evaluation of the
			// others, matching ggl_ipc_auth: only an GGL_ERR_OK match short
			// circuits the loop.
			continue
		}
		matched, _ := policyMatch(policy, info.Operation, resource, matcher)
		if matched {
			return nil
		}
	}
	return ggerr.New(ggerr.NoEntry, "no access-control policy authorizes this operation")
}

// policyMatch implements policy_match: the policy must list info.Operation
// (or a literal "*") under "operations", and at least one of its
// "resources" patterns (or a literal "*") must match resource.
func policyMatch(policy gobj.Object, operation, resource string, matcher ResourceMatcher) (bool, error) {
	opsObj, ok := policy.Get("operations")
	if !ok || opsObj.Kind != gobj.KindList {
		return false, ggerr.New(ggerr.Config, "policy missing operations list")
	}
	resObj, ok := policy.Get("resources")
	if !ok || resObj.Kind != gobj.KindList {
		return false, ggerr.New(ggerr.Config, "policy missing resources list")
	}

	opMatched := false
	for _, o := range opsObj.List {
		s, ok := o.AsString()
		if !ok {
			return false, ggerr.New(ggerr.Config, "policy operation is not a string")
		}
		if s == operation || s == "*" {
			opMatched = true
			break
		}
	}
	if !opMatched {
		return false, nil
	}

	for _, r := range resObj.List {
		pattern, ok := r.AsString()
		if !ok {
			return false, ggerr.New(ggerr.Config, "policy resource is not a string")
		}
		if pattern == "*" || matcher(resource, pattern) {
			return true, nil
		}
	}
	return false, nil
}
