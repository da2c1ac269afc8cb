package router

func travelTable() Table {
	return Table{
		DefaultAgent: "context",
		Profiles: []Profile{
			{
				Name:              "flight",
				PrimaryKeywords:   []string{"flight", "fly", "airline", "book a flight"},
				SecondaryKeywords: []string{"airport", "departure", "ticket"},
				DomainWords:       []string{"flight", "plane", "airport"},
				Transactional:     true,
				Priority:          1,
			},
			{
				Name:              "hotel",
				PrimaryKeywords:   []string{"hotel", "accommodation", "stay"},
				SecondaryKeywords: []string{"room", "night", "check-in"},
				DomainWords:       []string{"hotel", "room"},
				Transactional:     true,
				Priority:          0.9,
			},
			{
				Name:              "context",
				PrimaryKeywords:   []string{"weather", "visa", "currency"},
				SecondaryKeywords: []string{"culture", "events", "tips"},
				DomainWords:       []string{"weather", "visa"},
				Priority:          0.8,
			},
		},
	}
}
