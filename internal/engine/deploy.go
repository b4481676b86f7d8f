package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/roach88/tenantry/internal/compiler"
	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// DeploymentRequest describes a deployment.
type DeploymentRequest struct {
	Name     string
	TenantID string

	Resources []model.Resource

	// DuplicateFiltering skips the deployment when the latest deployment
	// with the same name in the same tenant has identical resources.
	DuplicateFiltering bool
}

// Deployed is the outcome of Deploy.
type Deployed struct {
	Deployment  model.Deployment
	Definitions []model.ProcessDefinition

	// Duplicate is set when duplicate filtering returned an existing
	// deployment instead of writing a new one.
	Duplicate bool
}

// compiledProcess pairs a process model with the partition it deploys into.
type compiledProcess struct {
	model model.ProcessModel
	key   model.TenantKey
}

// Deploy compiles the request's resources and writes the deployment with one
// new definition version per declared process, all in one transaction.
//
// Each definition inherits the deployment's tenant and is versioned within
// its own (key, tenant) partition. Definitions with a timer start get a
// timer-start job, replacing the timer-start jobs of earlier versions in the
// same partition.
func (e *Engine) Deploy(ctx context.Context, req DeploymentRequest) (Deployed, error) {
	resources := model.WithChecksums(req.Resources)

	processes, err := compileResources(resources, req.TenantID)
	if err != nil {
		return Deployed{}, err
	}

	keys := make([]model.TenantKey, len(processes))
	for i, p := range processes {
		keys[i] = p.key
	}
	unlock := e.locks.lock(keys...)
	defer unlock()

	var out Deployed
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		if req.DuplicateFiltering {
			prev, found, err := tx.LatestDeploymentByName(ctx, req.Name, req.TenantID)
			if err != nil {
				return err
			}
			if found && sameResources(prev.Resources, resources) {
				defs, err := tx.Definitions(ctx, store.DefinitionQuery{DeploymentID: prev.ID})
				if err != nil {
					return err
				}
				out = Deployed{Deployment: prev, Definitions: defs, Duplicate: true}
				return nil
			}
		}

		now := e.timestamp()
		dep := model.Deployment{
			ID:         e.ids.Generate(),
			Name:       req.Name,
			TenantID:   req.TenantID,
			DeployedAt: now,
			Resources:  resources,
			Seq:        e.seq.Next(),
		}
		if err := tx.InsertDeployment(ctx, dep); err != nil {
			return err
		}

		defs := make([]model.ProcessDefinition, 0, len(processes))
		for _, p := range processes {
			def, err := e.deployDefinition(ctx, tx, dep, p)
			if err != nil {
				return err
			}
			defs = append(defs, def)
		}

		out = Deployed{Deployment: dep, Definitions: defs}
		return nil
	})
	if err != nil {
		if IsTenantClash(err) {
			e.metrics.TenantClashesTotal.Inc()
		}
		return Deployed{}, err
	}

	if out.Duplicate {
		e.logger.Info("deployment unchanged, duplicate filtered",
			zap.String("deployment_id", out.Deployment.ID),
			zap.String("tenant_id", req.TenantID),
		)
		return out, nil
	}

	e.metrics.DeploymentsTotal.WithLabelValues(tenantLabel(req.TenantID)).Inc()
	for _, def := range out.Definitions {
		e.metrics.DefinitionsTotal.WithLabelValues(tenantLabel(def.TenantID)).Inc()
		if def.HasTimerStart {
			e.metrics.jobCreated(model.JobTimerStart)
		}
		e.logger.Info("process definition deployed",
			zap.String("deployment_id", def.DeploymentID),
			zap.String("key", def.Key),
			zap.String("tenant_id", def.TenantID),
			zap.Int("version", def.Version),
		)
	}

	return out, nil
}

// deployDefinition versions and writes one definition, then schedules its
// timer start.
func (e *Engine) deployDefinition(ctx context.Context, tx *store.Tx, dep model.Deployment, p compiledProcess) (model.ProcessDefinition, error) {
	version, err := nextVersion(ctx, tx, p.key)
	if err != nil {
		return model.ProcessDefinition{}, err
	}

	def := model.ProcessDefinition{
		ID:            fmt.Sprintf("%s:%d:%s", p.key.DefinitionKey, version, e.ids.Generate()),
		Key:           p.key.DefinitionKey,
		Name:          p.model.Name,
		Version:       version,
		DeploymentID:  dep.ID,
		ResourceName:  p.model.ResourceName,
		TenantID:      dep.TenantID,
		HasTimerStart: p.model.TimerStart != "",
		Seq:           e.seq.Next(),
	}

	if err := tx.InsertDefinition(ctx, def); err != nil {
		if store.IsUniqueViolation(err) {
			return def, &TenancyError{
				Code:     ErrCodeTenantClash,
				Message:  fmt.Sprintf("version %d already exists in partition %s", version, p.key),
				Key:      p.key.DefinitionKey,
				TenantID: p.key.TenantID,
			}
		}
		return def, err
	}
	e.processModels.Store(def.ID, p.model)

	if def.HasTimerStart {
		if _, err := tx.DeleteTimerStartJobs(ctx, p.key); err != nil {
			return def, err
		}
		if _, err := e.createJob(ctx, tx, model.JobTimerStart, jobSources{definition: &def}, jobTarget{
			definitionID: def.ID,
			due:          dep.DeployedAt.Add(compiler.TimerStartDelay(p.model)),
		}); err != nil {
			return def, err
		}
	}

	return def, nil
}

// compileResources compiles every process resource. A key declared twice in
// one deployment is rejected.
func compileResources(resources []model.Resource, tenantID string) ([]compiledProcess, error) {
	var out []compiledProcess
	seen := make(map[string]string)

	for _, res := range resources {
		models, err := compiler.Compile(res)
		if err != nil {
			return nil, &TenancyError{
				Code:     ErrCodeInvalidResource,
				Message:  err.Error(),
				TenantID: tenantID,
				Details:  map[string]string{"resource": res.Name},
			}
		}
		for _, m := range models {
			if prev, ok := seen[m.Key]; ok {
				return nil, &TenancyError{
					Code:     ErrCodeInvalidResource,
					Message:  fmt.Sprintf("key declared by both %s and %s", prev, res.Name),
					Key:      m.Key,
					TenantID: tenantID,
				}
			}
			seen[m.Key] = res.Name
			out = append(out, compiledProcess{model: m, key: model.NewTenantKey(m.Key, tenantID)})
		}
	}

	return out, nil
}

// sameResources compares two resource sets by name and checksum.
func sameResources(a, b []model.Resource) bool {
	if len(a) != len(b) {
		return false
	}
	sums := func(rs []model.Resource) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Name + "\x00" + r.Checksum
		}
		sort.Strings(out)
		return out
	}
	as, bs := sums(a), sums(b)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// DeleteDeployment removes a deployment and its definitions.
//
// Without cascade the delete fails with DEPLOYMENT_IN_USE while instances of
// its definitions are running, and history is kept. With cascade, running
// instances and all history of the deployment's definitions are removed too.
func (e *Engine) DeleteDeployment(ctx context.Context, deploymentID string, cascade bool) error {
	defs, err := e.store.Definitions(ctx, store.DefinitionQuery{DeploymentID: deploymentID})
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	keys := make([]model.TenantKey, len(defs))
	for i, d := range defs {
		keys[i] = d.TenantKey()
	}
	unlock := e.locks.lock(keys...)
	defer unlock()

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		dep, err := tx.Deployment(ctx, deploymentID)
		if err != nil {
			return notFoundOr(err, "deployment", deploymentID)
		}

		if !cascade {
			running, err := runningInstances(ctx, tx, deploymentID)
			if err != nil {
				return err
			}
			if running > 0 {
				return &TenancyError{
					Code:     ErrCodeDeploymentInUse,
					Message:  fmt.Sprintf("deployment has %d running instance(s)", running),
					TenantID: dep.TenantID,
					Details:  map[string]string{"deployment_id": deploymentID},
				}
			}
		}

		return tx.DeleteDeployment(ctx, deploymentID, cascade)
	})
	if err != nil {
		return err
	}

	for _, d := range defs {
		e.processModels.Delete(d.ID)
	}
	e.logger.Info("deployment deleted",
		zap.String("deployment_id", deploymentID),
		zap.Bool("cascade", cascade),
	)
	return nil
}

func runningInstances(ctx context.Context, tx *store.Tx, deploymentID string) (int, error) {
	defs, err := tx.Definitions(ctx, store.DefinitionQuery{DeploymentID: deploymentID})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range defs {
		n, err := tx.CountInstances(ctx, store.InstanceQuery{ProcessDefinitionID: d.ID})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
