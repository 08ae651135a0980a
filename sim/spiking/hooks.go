// Package spiking provides spiking neural network nodes for the sim engine:
// state variables, integrate-and-fire models, synapses and inputs, atomic
// spike propagation between neurons and spike probes.
//
// A SpikingModel drives code generation for everything beneath it by
// triggering the hooks below, in this order, from its model code:
//
//	read_incoming_spikes → read_state → calculate_inputs →
//	state_calculations → independent_state_updates → spike_processing
//
// spike_processing branches on the model's spike_condition into
// spike_generated (spike_state_updates, then spike_propagation with one
// spike_send per neighbor) and no_spike_generated (no_spike_state_updates).
package spiking

import "github.com/clegans/clegans/sim"

// Staged code generation hook bases. Nodes register with sim.Pre, sim.In or
// sim.Post of these.
const (
	HookReadIncomingSpikes      sim.HookName = "read_incoming_spikes"
	HookReadState               sim.HookName = "read_state"
	HookCalculateInputs         sim.HookName = "calculate_inputs"
	HookStateCalculations       sim.HookName = "state_calculations"
	HookIndependentStateUpdates sim.HookName = "independent_state_updates"
	HookSpikeProcessing         sim.HookName = "spike_processing"
	HookSpikeGenerated          sim.HookName = "spike_generated"
	HookSpikeStateUpdates       sim.HookName = "spike_state_updates"
	HookSpikePropagation        sim.HookName = "spike_propagation"
	HookSpikeSend               sim.HookName = "spike_send"
	HookNoSpikeGenerated        sim.HookName = "no_spike_generated"
	HookNoSpikeStateUpdates     sim.HookName = "no_spike_state_updates"
)

// modelCodeOrder is the sequence SpikingModel triggers from model_cl_code.
var modelCodeOrder = []sim.HookName{
	HookReadIncomingSpikes,
	HookReadState,
	HookCalculateInputs,
	HookStateCalculations,
	HookIndependentStateUpdates,
	HookSpikeProcessing,
}
