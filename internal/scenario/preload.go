package scenario

const (
	lastPreloadedID = 3

	// Ids handed out to user-created scenarios and agents start here.
	firstScenarioID = 100
	firstAgentID    = 1000
)

// Preloaded returns the built-in scenarios every store is seeded with.
func Preloaded() []Scenario {
	return []Scenario{
		{
			ID: 1, Name: "General Purpose Cloud", SlotCount: 5, MaxRounds: 50, Increment: 1.0,
			Agents: []AgentSpec{
				{ID: 10, Name: "Production_DB_Master", Strategy: "MYOPIC", Profile: "RICH", TargetSlot: NoTarget},
				{ID: 11, Name: "Internal_Wiki_App", Strategy: "MYOPIC", Profile: "POOR", TargetSlot: NoTarget},
				{ID: 12, Name: "Spot_Instance_Bot", Strategy: "SNIPER", Profile: "RANDOM", TargetSlot: NoTarget},
				{ID: 13, Name: "License_Server_Lock", Strategy: "MYOPIC", Profile: "FOCUSED", TargetSlot: 1},
			},
		},
		{
			ID: 2, Name: "HPC Cluster Congestion", SlotCount: 10, MaxRounds: 100, Increment: 1.0,
			Agents: []AgentSpec{
				{ID: 20, Name: "Weather_Simulation_A", Strategy: "MYOPIC", Profile: "RICH", TargetSlot: NoTarget},
				{ID: 21, Name: "Crypto_Miner_Farm", Strategy: "MYOPIC", Profile: "RICH", TargetSlot: NoTarget},
				{ID: 22, Name: "Priority_Scheduler_X", Strategy: "SNIPER", Profile: "RICH", TargetSlot: NoTarget},
				{ID: 23, Name: "Financial_Model_Risk", Strategy: "MYOPIC", Profile: "RICH", TargetSlot: NoTarget},
			},
		},
		{
			ID: 3, Name: "Mixed Workload Optimization", SlotCount: 5, MaxRounds: 100, Increment: 1.0,
			Agents: []AgentSpec{
				{ID: 30, Name: "Web_Server_HA", Strategy: "FLEXIBLE", Profile: "FLEXIBLE_PAIR", TargetSlot: NoTarget},
				{ID: 31, Name: "Distributed_ML_Job", Strategy: "BUNDLE", Profile: "BUNDLE_PAIR", TargetSlot: NoTarget},
				{ID: 32, Name: "Dev_Test_Env", Strategy: "BUDGET", Profile: "RICH", TargetSlot: NoTarget, Budget: 15},
			},
		},
	}
}
