package distribution

import (
	"math/rand"

	"distscan/internal/model"
)

// DefaultPortsPerSubpart matches the source's default chunk size.
const DefaultPortsPerSubpart = 3

// GenerateSubparts partitions ports across targets into subparts, per
// spec.md §4.2. When nbSubparts is 0, ports are chunked in groups of
// portsPerSubpart; otherwise ports are split into nbSubparts chunks of
// len(ports)/nbSubparts ports per target. In both modes a trailing short
// chunk holds any remainder, so no port is lost. The full list is shuffled
// per-target before chunking and again across targets afterward, so no
// single target is front-loaded in the dispatch order.
func GenerateSubparts(targets []string, ports []int, portsPerSubpart, nbSubparts int) []model.Subpart {
	nbPorts := len(ports)
	if nbPorts == 0 || len(targets) == 0 {
		return nil
	}

	if nbSubparts == 0 {
		if portsPerSubpart <= 0 {
			portsPerSubpart = DefaultPortsPerSubpart
		}
		nbSubparts = nbPorts / portsPerSubpart
	} else {
		portsPerSubpart = nbPorts / nbSubparts
	}

	var subparts []model.Subpart
	for _, target := range targets {
		shuffled := append([]int(nil), ports...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		i := 0
		for ; i < nbSubparts; i++ {
			chunk := shuffled[i*portsPerSubpart : (i+1)*portsPerSubpart]
			if len(chunk) == 0 {
				continue
			}
			subparts = append(subparts, model.Subpart{ID: model.NewSubpartID(), Target: target, Ports: append([]int(nil), chunk...)})
		}
		if rest := shuffled[i*portsPerSubpart:]; len(rest) > 0 {
			subparts = append(subparts, model.Subpart{ID: model.NewSubpartID(), Target: target, Ports: append([]int(nil), rest...)})
		}
	}

	rand.Shuffle(len(subparts), func(i, j int) { subparts[i], subparts[j] = subparts[j], subparts[i] })
	return subparts
}
