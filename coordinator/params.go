package coordinator

import (
	"context"
	"fmt"

	"github.com/runledger/runledger/domain"
)

// ParamInput is one client-supplied parameter.
type ParamInput struct {
	Name  string
	Value string
	Type  domain.ParamType
}

// LogParams implements the log_params contract of §4.5: each parameter is
// write-once. A conflicting value for an existing name is reported as a
// PARAM_CONFLICT warning and the original value is retained.
func (c *Coordinator) LogParams(ctx context.Context, runID string, params []ParamInput) ([]domain.Warning, error) {
	if len(params) > c.cfg.MaxParamsPerCall {
		return nil, fmt.Errorf("%w: log_params of %d entries exceeds the %d entry cap", domain.ErrInvalidArgument, len(params), c.cfg.MaxParamsPerCall)
	}
	for _, p := range params {
		if len(p.Value) > maxParamValueBytes {
			return nil, fmt.Errorf("%w: param %q value exceeds %d bytes", domain.ErrInvalidArgument, p.Name, maxParamValueBytes)
		}
	}

	var warnings []domain.Warning
	err := c.locks.withLock(runID, func() error {
		run, err := c.meta.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != domain.RunRunning {
			return fmt.Errorf("%w: run %s is not running", domain.ErrInvalidTransition, runID)
		}

		for _, p := range params {
			ok, upsertErr := c.meta.UpsertParam(ctx, runID, p.Name, p.Value, p.Type)
			if upsertErr != nil {
				return upsertErr
			}
			if !ok {
				warnings = append(warnings, domain.Warning{
					Code:     domain.WarnParamConflict,
					Message:  fmt.Sprintf("parameter %q already has a different value; original retained", p.Name),
					Severity: "warning",
				})
			}
		}
		return c.meta.TouchHeartbeat(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// LogTags implements log_tags/delete_tags: set upserts (mutable, overwrite
// semantics), remove deletes by key. Tag-key cardinality is policed here by
// the cardinality guard before any key is persisted.
func (c *Coordinator) LogTags(ctx context.Context, runID string, set map[string]string, removeKeys []string) ([]domain.Warning, error) {
	for _, v := range set {
		if len(v) > maxTagValueBytes {
			return nil, fmt.Errorf("%w: tag value exceeds %d bytes", domain.ErrInvalidArgument, maxTagValueBytes)
		}
	}

	var warnings []domain.Warning
	err := c.locks.withLock(runID, func() error {
		run, err := c.meta.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != domain.RunRunning {
			return fmt.Errorf("%w: run %s is not running", domain.ErrInvalidTransition, runID)
		}

		admitted := make(map[string]string, len(set))
		for k, v := range set {
			ok, warn := c.guard.AdmitTagKey(runID, k)
			if warn != "" {
				warnings = append(warnings, domain.Warning{Code: warn, Message: fmt.Sprintf("tag key %q cardinality threshold", k), Severity: "warning"})
			}
			if !ok {
				continue
			}
			admitted[k] = v
		}
		if len(admitted) > 0 {
			if err := c.meta.UpsertTags(ctx, runID, admitted); err != nil {
				return err
			}
		}
		if len(removeKeys) > 0 {
			if err := c.meta.DeleteTags(ctx, runID, removeKeys); err != nil {
				return err
			}
		}
		return c.meta.TouchHeartbeat(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}
