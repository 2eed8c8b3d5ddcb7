package graph

import (
	"fmt"

	"agentmesh/internal/domain"
)

// validateStructure checks the payload before any write happens. Every
// relation endpoint and the default agent must reference a declared agent,
// and external entries need a base URL.
func validateStructure(def *domain.FullGraphDefinition) error {
	if def.ID == "" {
		return domain.NewSubSystemError("graph", "validateStructure",
			domain.ErrInvalidInput, "graph id required")
	}
	if def.Name == "" {
		return domain.NewSubSystemError("graph", "validateStructure",
			domain.ErrInvalidInput, "graph name required")
	}
	if len(def.Agents) == 0 {
		return domain.NewSubSystemError("graph", "validateStructure",
			domain.ErrGraphInvalid, "graph declares no agents")
	}

	if def.DefaultAgentID == "" {
		return domain.NewSubSystemError("graph", "validateStructure",
			domain.ErrDefaultAgentUnknown, "defaultAgentId required")
	}
	if _, ok := def.Agents[def.DefaultAgentID]; !ok {
		return domain.NewSubSystemError("graph", "validateStructure",
			domain.ErrDefaultAgentUnknown, def.DefaultAgentID)
	}

	for id, agent := range def.Agents {
		if agent.Kind == domain.GraphAgentExternal {
			if agent.BaseURL == "" {
				return domain.NewSubSystemError("graph", "validateStructure",
					domain.ErrGraphInvalid,
					fmt.Sprintf("external agent %s has no baseUrl", id))
			}
			continue
		}
		for _, target := range agent.CanTransferTo {
			if _, ok := def.Agents[target]; !ok {
				return domain.NewSubSystemError("graph", "validateStructure",
					domain.ErrRelationTargetUnknown,
					fmt.Sprintf("%s -> %s", id, target))
			}
		}
		for _, target := range agent.CanDelegateTo {
			if _, ok := def.Agents[target]; !ok {
				return domain.NewSubSystemError("graph", "validateStructure",
					domain.ErrRelationTargetUnknown,
					fmt.Sprintf("%s -> %s", id, target))
			}
		}
	}
	return nil
}

// applyInheritance materializes project-level stopWhen defaults into the
// payload before it is written, so reads never have to fill gaps.
// The graph inherits transferCountIs (with a hard default); internal agents
// inherit stepCountIs only when the project configures one.
func applyInheritance(project *domain.Project, def *domain.FullGraphDefinition) {
	if def.StopWhen == nil {
		def.StopWhen = &domain.StopWhen{}
	}
	def.StopWhen.InheritTransferCount(project.StopWhen)

	projectHasStep := project.StopWhen != nil && project.StopWhen.StepCountIs != nil
	for _, agent := range def.InternalAgents() {
		if agent.StopWhen == nil {
			if !projectHasStep {
				continue
			}
			agent.StopWhen = &domain.StopWhen{}
		}
		agent.StopWhen.InheritStepCount(project.StopWhen)
	}
}

// cascadeModelSettings rewrites agent model slots that were inheriting the
// graph-level value. An agent slot equal to the old graph slot follows the
// graph to its new value; a slot the agent pinned itself stays put.
func cascadeModelSettings(oldGraph *domain.ModelSettings, def *domain.FullGraphDefinition) {
	for _, slot := range domain.ModelSlots {
		oldCfg := oldGraph.Slot(slot)
		newCfg := def.Models.Slot(slot)
		if oldCfg == nil {
			continue
		}
		if newCfg != nil && newCfg.Model == oldCfg.Model {
			continue
		}
		for _, agent := range def.InternalAgents() {
			agentCfg := agent.Models.Slot(slot)
			if agentCfg == nil || agentCfg.Model != oldCfg.Model {
				continue
			}
			if newCfg == nil {
				agent.Models.SetSlot(slot, nil)
				continue
			}
			copied := *newCfg
			agent.Models.SetSlot(slot, &copied)
		}
	}
}
