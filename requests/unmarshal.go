package requests

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/zexplorer"
)

// PastePlan is a decoded paste request: every source pasted into every
// destination using the named conflict policy
type PastePlan struct {
	ID           uuid.UUID
	Move         bool
	Policy       string
	Sources      []zexplorer.ResourceHandle
	Destinations []zexplorer.ResourceHandle
}

// UnmarshalPastePlan decodes a JSON plan. Handles without a connection are
// bound to conn.
func UnmarshalPastePlan(data []byte, conn string) (*PastePlan, error) {
	var dto PastePlanDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	return convertPlanDTO(dto, conn)
}

// UnmarshalPastePlanYAML is [UnmarshalPastePlan] for YAML input
func UnmarshalPastePlanYAML(data []byte, conn string) (*PastePlan, error) {
	var dto PastePlanDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, err
	}
	return convertPlanDTO(dto, conn)
}

// LoadPastePlanFile reads a plan from a .json, .yaml or .yml file
func LoadPastePlanFile(path, conn string) (*PastePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var plan *PastePlan
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		plan, err = UnmarshalPastePlanYAML(data, conn)
	case ".json":
		plan, err = UnmarshalPastePlan(data, conn)
	default:
		return nil, fmt.Errorf("unknown paste plan file extension: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal paste plan: %w", err)
	}
	return plan, nil
}

func convertPlanDTO(dto PastePlanDTO, conn string) (*PastePlan, error) {
	if len(dto.Sources) == 0 {
		return nil, errors.New("paste plan has no sources")
	}
	if len(dto.Destinations) == 0 {
		return nil, errors.New("paste plan has no destinations")
	}

	id := uuid.New()
	if dto.ID != nil {
		var err error
		if id, err = uuid.Parse(*dto.ID); err != nil {
			return nil, fmt.Errorf("invalid paste plan id: %w", err)
		}
	}

	plan := &PastePlan{
		ID:     id,
		Move:   dto.Move,
		Policy: strings.ToLower(dto.Policy),
	}
	for i, h := range dto.Sources {
		handle, err := convertHandleDTO(h, conn, false)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		plan.Sources = append(plan.Sources, handle)
	}
	for i, h := range dto.Destinations {
		handle, err := convertHandleDTO(h, conn, true)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}
		if !handle.Dir {
			return nil, fmt.Errorf("destination %d: %s is not a container", i, handle.Key)
		}
		plan.Destinations = append(plan.Destinations, handle)
	}
	return plan, nil
}

func convertHandleDTO(dto HandleDTO, conn string, dir bool) (zexplorer.ResourceHandle, error) {
	if dto.Key == "" {
		return zexplorer.ResourceHandle{}, errors.New("missing key")
	}
	kind := zexplorer.KindLocal
	if dto.Kind != "" {
		if kind = zexplorer.ParseResourceKind(dto.Kind); kind == zexplorer.KindUnknown {
			return zexplorer.ResourceHandle{}, fmt.Errorf("unknown kind %q", dto.Kind)
		}
	}
	if dto.Connection != "" {
		conn = dto.Connection
	}
	return zexplorer.NewHandle(conn, kind, dto.Key, valueOrDefault(dto.Dir, dir)), nil
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
