package gossip

/*
Endpoint-state serialization follows the line-record format from spec.md §6:

	endpoint-[APP_STATE value, version N]/.../[HeartBeat, generation G, version V]

with records separated by "\n". Application-state segments are emitted in a
stable (alphabetical) key order so the format is a bijection for testing:
decode(encode(m)) == m for any well-formed input.
*/

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	segmentRe   = regexp.MustCompile(`\[([^\]]*)\]`)
	appStateRe  = regexp.MustCompile(`^(\S+) (.*), version (-?\d+)$`)
	heartbeatRe = regexp.MustCompile(`^HeartBeat, generation (-?\d+), version (-?\d+)$`)
)

// SerializeStates renders states as newline-separated line records.
func SerializeStates(states map[Endpoint]*EndpointState) string {
	endpoints := make([]Endpoint, 0, len(states))
	for ep := range states {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })

	records := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		records = append(records, serializeOne(ep, states[ep]))
	}
	return strings.Join(records, "\n")
}

func serializeOne(ep Endpoint, es *EndpointState) string {
	keys := make([]AppStateKey, 0, len(es.AppStates))
	for k := range es.AppStates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	segments := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		v := es.AppStates[k]
		segments = append(segments, fmt.Sprintf("[%s %s, version %d]", k, v.Value, v.Version))
	}
	segments = append(segments, fmt.Sprintf("[HeartBeat, generation %d, version %d]", es.Heartbeat.Generation, es.Heartbeat.Version))

	return fmt.Sprintf("%s-%s", ep, strings.Join(segments, "/"))
}

// DeserializeStates parses the output of SerializeStates back into a map.
func DeserializeStates(blob string) (map[Endpoint]*EndpointState, error) {
	states := make(map[Endpoint]*EndpointState)
	if strings.TrimSpace(blob) == "" {
		return states, nil
	}
	for _, line := range strings.Split(blob, "\n") {
		if line == "" {
			continue
		}
		ep, es, err := deserializeOne(line)
		if err != nil {
			return nil, fmt.Errorf("gossip: decode endpoint state line %q: %w", line, err)
		}
		states[ep] = es
	}
	return states, nil
}

func deserializeOne(line string) (Endpoint, *EndpointState, error) {
	sep := strings.Index(line, "-[")
	if sep < 0 {
		return "", nil, fmt.Errorf("missing endpoint/state separator")
	}
	endpoint := Endpoint(line[:sep])
	rest := line[sep+1:]

	es := &EndpointState{AppStates: make(map[AppStateKey]AppState)}
	sawHeartbeat := false
	for _, match := range segmentRe.FindAllStringSubmatch(rest, -1) {
		content := match[1]
		if hb := heartbeatRe.FindStringSubmatch(content); hb != nil {
			gen, err := strconv.ParseInt(hb[1], 10, 64)
			if err != nil {
				return "", nil, err
			}
			ver, err := strconv.ParseInt(hb[2], 10, 64)
			if err != nil {
				return "", nil, err
			}
			es.Heartbeat = HeartbeatSnapshot{Generation: gen, Version: ver}
			sawHeartbeat = true
			continue
		}
		as := appStateRe.FindStringSubmatch(content)
		if as == nil {
			return "", nil, fmt.Errorf("unrecognized segment %q", content)
		}
		ver, err := strconv.ParseInt(as[3], 10, 64)
		if err != nil {
			return "", nil, err
		}
		es.AppStates[AppStateKey(as[1])] = AppState{Value: as[2], Version: ver}
	}
	if !sawHeartbeat {
		return "", nil, fmt.Errorf("record has no HeartBeat segment")
	}
	return endpoint, es, nil
}
