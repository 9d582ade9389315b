package mcpclient

import (
	"context"
	"encoding/json"
	"sort"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// nextRequestID generates a correlation ID for internal (non-invocation)
// requests. Invocations use their own invocation identifier instead.
func nextRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails if the entropy source does
		panic(err)
	}
	return "req_" + id
}

// DiscoverCapabilities enumerates tools, resources and prompts and replaces
// the session's cached capability set. A category that fails to list is
// marked unavailable and retried on the next discovery cycle; it does not
// fail the whole session. Descriptors that fail schema validation are
// dropped and logged, never cached.
func (s *Session) DiscoverCapabilities(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	caps := protocol.CapabilitySet{Generation: gen}
	m := metrics.Default()

	tools, err := s.listTools(ctx, gen)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Tool discovery failed; category marked unavailable")
		caps.ToolsUnavailable = true
		m.DiscoveriesTotal.WithLabelValues(s.providerID, "tools_failed").Inc()
	} else {
		caps.Tools = tools
	}

	resources, err := s.listResources(ctx, gen)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Resource discovery failed; category marked unavailable")
		caps.ResourcesUnavailable = true
		m.DiscoveriesTotal.WithLabelValues(s.providerID, "resources_failed").Inc()
	} else {
		caps.Resources = resources
	}

	prompts, err := s.listPrompts(ctx, gen)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Prompt discovery failed; category marked unavailable")
		caps.PromptsUnavailable = true
		m.DiscoveriesTotal.WithLabelValues(s.providerID, "prompts_failed").Inc()
	} else {
		caps.Prompts = prompts
	}

	s.mu.Lock()
	s.caps = caps
	s.mu.Unlock()

	m.DiscoveriesTotal.WithLabelValues(s.providerID, "completed").Inc()
	s.logger.Debug().
		Int("tools", len(caps.Tools)).
		Int("resources", len(caps.Resources)).
		Int("prompts", len(caps.Prompts)).
		Msg("Capability discovery completed")

	return nil
}

func (s *Session) listTools(ctx context.Context, gen int64) ([]protocol.CapabilityDescriptor, error) {
	resp, err := s.call(ctx, protocol.MethodListTools, nil, s.invokeTimeout)
	if err != nil {
		return nil, err
	}

	var result protocol.ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}

	descs := make([]protocol.CapabilityDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		desc := protocol.CapabilityDescriptor{
			Kind:        protocol.CapabilityTool,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Generation:  gen,
		}
		if err := protocol.ValidateDescriptor(desc); err != nil {
			s.logger.Warn().Err(err).Str("tool", t.Name).Msg("Dropping invalid tool descriptor")
			continue
		}
		descs = append(descs, desc)
	}

	sortDescriptors(descs)
	return descs, nil
}

func (s *Session) listResources(ctx context.Context, gen int64) ([]protocol.CapabilityDescriptor, error) {
	resp, err := s.call(ctx, protocol.MethodListResources, nil, s.invokeTimeout)
	if err != nil {
		return nil, err
	}

	var result protocol.ListResourcesResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}

	descs := make([]protocol.CapabilityDescriptor, 0, len(result.Resources))
	for _, r := range result.Resources {
		desc := protocol.CapabilityDescriptor{
			Kind:        protocol.CapabilityResource,
			Name:        r.Name,
			Description: r.Description,
			URI:         r.URI,
			Generation:  gen,
		}
		if err := protocol.ValidateDescriptor(desc); err != nil {
			s.logger.Warn().Err(err).Str("resource", r.Name).Msg("Dropping invalid resource descriptor")
			continue
		}
		descs = append(descs, desc)
	}

	sortDescriptors(descs)
	return descs, nil
}

func (s *Session) listPrompts(ctx context.Context, gen int64) ([]protocol.CapabilityDescriptor, error) {
	resp, err := s.call(ctx, protocol.MethodListPrompts, nil, s.invokeTimeout)
	if err != nil {
		return nil, err
	}

	var result protocol.ListPromptsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}

	descs := make([]protocol.CapabilityDescriptor, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		desc := protocol.CapabilityDescriptor{
			Kind:        protocol.CapabilityPrompt,
			Name:        p.Name,
			Description: p.Description,
			Generation:  gen,
		}
		if err := protocol.ValidateDescriptor(desc); err != nil {
			s.logger.Warn().Err(err).Str("prompt", p.Name).Msg("Dropping invalid prompt descriptor")
			continue
		}
		descs = append(descs, desc)
	}

	sortDescriptors(descs)
	return descs, nil
}

// sortDescriptors keeps discovery idempotent for unchanged provider state
// regardless of listing order.
func sortDescriptors(descs []protocol.CapabilityDescriptor) {
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].Name < descs[j].Name
	})
}
