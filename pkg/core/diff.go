package core

import (
	"fmt"
	"sort"
)

// DiffResult is the per-resource status map plus the aggregate status for one
// Application.
type DiffResult struct {
	Statuses  []ResourceStatus
	Aggregate AppStatus
}

// Status looks up the status for a key.
func (result DiffResult) Status(key ResourceKey) (ResourceStatus, bool) {
	for _, status := range result.Statuses {
		if status.Key == key {
			return status, true
		}
	}
	return ResourceStatus{}, false
}

// DiffResources compares the desired and live resource sets of appName.
// Live resources are expected to come from observing every identity in the
// desired set and the applied inventory; unreadable identities are passed in
// unknown and surface as Unknown. Identities owned by another Application are
// conflicts and are never acted on.
func DiffResources(appName string, desired, live []Resource, unknown []ResourceStatus) DiffResult {
	liveByKey := make(map[ResourceKey]Resource, len(live))
	for _, resource := range live {
		liveByKey[resource.Key] = resource
	}
	unknownKeys := make(map[ResourceKey]struct{}, len(unknown))
	for _, status := range unknown {
		unknownKeys[status.Key] = struct{}{}
	}
	desiredByKey := make(map[ResourceKey]struct{}, len(desired))

	statuses := make([]ResourceStatus, 0, len(desired)+len(live))

	for _, desiredResource := range desired {
		desiredByKey[desiredResource.Key] = struct{}{}

		// An unreadable identity already has its Unknown status; it must
		// not pick up a second classification here.
		if _, unreadable := unknownKeys[desiredResource.Key]; unreadable {
			continue
		}

		liveResource, found := liveByKey[desiredResource.Key]
		if !found {
			statuses = append(statuses, ResourceStatus{Key: desiredResource.Key, State: ResourceMissing})
			continue
		}

		if liveResource.Owner != "" && liveResource.Owner != appName {
			statuses = append(statuses, ResourceStatus{
				Key:     desiredResource.Key,
				State:   ResourceConflict,
				Message: (&ConflictError{Key: desiredResource.Key, Owner: liveResource.Owner, Claimant: appName}).Error(),
			})
			continue
		}

		if LiveMatches(desiredResource, liveResource) {
			statuses = append(statuses, ResourceStatus{Key: desiredResource.Key, State: ResourceInSync})
		} else {
			statuses = append(statuses, ResourceStatus{Key: desiredResource.Key, State: ResourceOutOfSync})
		}
	}

	// Live resources with no desired counterpart came from the inventory.
	for _, liveResource := range live {
		if _, wanted := desiredByKey[liveResource.Key]; wanted {
			continue
		}
		if _, unreadable := unknownKeys[liveResource.Key]; unreadable {
			continue
		}
		switch liveResource.Owner {
		case appName:
			statuses = append(statuses, ResourceStatus{Key: liveResource.Key, State: ResourceOrphaned})
		case "":
			statuses = append(statuses, ResourceStatus{Key: liveResource.Key, State: ResourceUnknown, Message: "previously applied resource no longer carries ownership metadata"})
		default:
			statuses = append(statuses, ResourceStatus{
				Key:     liveResource.Key,
				State:   ResourceConflict,
				Message: fmt.Sprintf("previously applied resource now owned by %q", liveResource.Owner),
			})
		}
	}

	statuses = append(statuses, unknown...)
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Key.Less(statuses[j].Key) })

	return DiffResult{Statuses: statuses, Aggregate: aggregate(statuses)}
}

// LiveMatches reports whether a live document still carries the desired
// content. The recorded hash catches desired-side changes, including fields
// removed from the desired document; the field projection catches live
// documents edited in place without touching the stamped metadata. Fields
// the desired document never set, such as status and server-managed
// metadata, are ignored.
func LiveMatches(desired, live Resource) bool {
	if live.RecordedHash() != HashContent(desired.Content) {
		return false
	}
	return projectedEqual(desired.Content, live.Content)
}

func projectedEqual(desired, live any) bool {
	switch desiredValue := desired.(type) {
	case map[string]any:
		liveMap, ok := live.(map[string]any)
		if !ok {
			return false
		}
		for key, value := range desiredValue {
			liveValue, present := liveMap[key]
			if !present || !projectedEqual(value, liveValue) {
				return false
			}
		}
		return true
	case []any:
		liveSlice, ok := live.([]any)
		if !ok || len(liveSlice) != len(desiredValue) {
			return false
		}
		for i := range desiredValue {
			if !projectedEqual(desiredValue[i], liveSlice[i]) {
				return false
			}
		}
		return true
	default:
		// Numbers decode as float64 from YAML but as int64 from the
		// cluster; compare them by value.
		if desiredNumber, isNumber := asFloat(desired); isNumber {
			liveNumber, liveIsNumber := asFloat(live)
			return liveIsNumber && desiredNumber == liveNumber
		}
		return desired == live
	}
}

func asFloat(value any) (float64, bool) {
	switch number := value.(type) {
	case int:
		return float64(number), true
	case int32:
		return float64(number), true
	case int64:
		return float64(number), true
	case float32:
		return float64(number), true
	case float64:
		return number, true
	}
	return 0, false
}

func aggregate(statuses []ResourceStatus) AppStatus {
	if len(statuses) == 0 {
		return StatusSynced
	}
	result := StatusSynced
	for _, status := range statuses {
		switch status.State {
		case ResourceConflict:
			return StatusDegraded
		case ResourceInSync:
		default:
			result = StatusOutOfSync
		}
	}
	return result
}
