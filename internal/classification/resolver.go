// Package classification merges operator-entered door classifications with
// heuristic defaults and keeps saved classifications keyed by file layout.
package classification

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/model"
)

// Input is everything the resolver needs for one run.
type Input struct {
	Manual             model.ClassificationRecord
	DoorIDs            []string
	HeuristicEntrances []string
	NumFloors          int
	ManualEnabled      bool
}

// Resolution is a complete door record for every observed door.
type Resolution struct {
	Doors              map[string]model.Door
	ConfirmedEntrances []string
	Flags              []model.AnomalyFlag
}

// Resolve produces one Door per door ID. With manual classification disabled every
// door gets the defaults, and heuristic entrances are marked as entrances. With it
// enabled, each blank form field falls back to the same default.
//
// Manual entries naming doors absent from the log are reported and ignored.
func Resolve(in Input) Resolution {
	heuristic := make(map[string]bool, len(in.HeuristicEntrances))
	for _, id := range in.HeuristicEntrances {
		heuristic[id] = true
	}

	res := Resolution{Doors: make(map[string]model.Door, len(in.DoorIDs))}
	known := make(map[string]bool, len(in.DoorIDs))

	for _, id := range in.DoorIDs {
		if known[id] {
			continue
		}
		known[id] = true

		door := defaultDoor(id, heuristic[id])
		if in.ManualEnabled {
			if manual, ok := in.Manual[id]; ok {
				door = applyManual(door, manual)
				if flag, bad := checkFloor(id, door.Floor, in.NumFloors); bad {
					res.Flags = append(res.Flags, flag)
				}
			}
		}
		res.Doors[id] = door
		if door.IsEntranceExit {
			res.ConfirmedEntrances = append(res.ConfirmedEntrances, id)
		}
	}
	sort.Strings(res.ConfirmedEntrances)

	if in.ManualEnabled {
		for _, id := range sortedDoorIDs(in.Manual) {
			if known[id] {
				continue
			}
			common.LogWarn("Ignoring classification for unknown door", common.Fields{
				"door_id": id,
				"error":   common.ErrClassificationMismatch.Error(),
			})
			res.Flags = append(res.Flags, model.AnomalyFlag{
				Kind:    model.AnomalyClassificationMismatch,
				DoorID:  id,
				Message: fmt.Sprintf("classification for door %q ignored: door does not appear in the event log", id),
			})
		}
	}

	return res
}

func defaultDoor(id string, entrance bool) model.Door {
	return model.Door{
		DoorID:         id,
		Floor:          model.DefaultFloor,
		SecurityLevel:  model.SecurityUnclassified,
		IsEntranceExit: entrance,
	}
}

func applyManual(door model.Door, manual model.DoorClassification) model.Door {
	if manual.Floor != "" {
		door.Floor = manual.Floor
	}
	if manual.IsEntranceExit != nil {
		door.IsEntranceExit = *manual.IsEntranceExit
	}
	if manual.IsStair != nil {
		door.IsStair = *manual.IsStair
	}
	if manual.SecurityLevel.Valid() {
		door.SecurityLevel = manual.SecurityLevel
	}
	return door
}

// checkFloor flags numeric floors outside 1..numFloors. Non-numeric floor names
// ("B1", "Mezzanine") are accepted as entered.
func checkFloor(id, floor string, numFloors int) (model.AnomalyFlag, bool) {
	if numFloors < 1 {
		return model.AnomalyFlag{}, false
	}
	n, err := strconv.Atoi(floor)
	if err != nil || (n >= 1 && n <= numFloors) {
		return model.AnomalyFlag{}, false
	}
	return model.AnomalyFlag{
		Kind:    model.AnomalyFloorOutOfRange,
		DoorID:  id,
		Message: fmt.Sprintf("door %q is on floor %d but the building has %d floors", id, n, numFloors),
	}, true
}

func sortedDoorIDs(rec model.ClassificationRecord) []string {
	ids := make([]string, 0, len(rec))
	for id := range rec {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
