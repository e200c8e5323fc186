package pricing

func builtinModels() []Model {
	return []Model{
		// premium
		{ID: "openai/gpt-5.2", Name: "GPT-5.2", Provider: "OpenAI", PriceInput: 0.015, PriceOutput: 0.045, ContextLength: 256000, Capabilities: []string{"text", "vision", "reasoning"}, Tier: "premium"},
		{ID: "openai/gpt-5", Name: "GPT-5", Provider: "OpenAI", PriceInput: 0.012, PriceOutput: 0.036, ContextLength: 200000, Capabilities: []string{"text", "vision", "reasoning"}, Tier: "premium"},
		{ID: "anthropic/claude-4.5-sonnet", Name: "Claude 4.5 Sonnet", Provider: "Anthropic", PriceInput: 0.008, PriceOutput: 0.024, ContextLength: 300000, Capabilities: []string{"text", "vision", "reasoning"}, Tier: "premium"},
		{ID: "openai/gpt-4-turbo", Name: "GPT-4 Turbo", Provider: "OpenAI", PriceInput: 0.01, PriceOutput: 0.03, ContextLength: 128000, Capabilities: []string{"text", "vision"}, Tier: "premium"},
		{ID: "openai/gpt-4o", Name: "GPT-4o", Provider: "OpenAI", PriceInput: 0.005, PriceOutput: 0.015, ContextLength: 128000, Capabilities: []string{"text", "vision"}, Tier: "premium"},
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "Anthropic", PriceInput: 0.003, PriceOutput: 0.015, ContextLength: 200000, Capabilities: []string{"text", "vision"}, Tier: "premium"},
		{ID: "anthropic/claude-3.7-sonnet", Name: "Claude 3.7 Sonnet", Provider: "Anthropic", PriceInput: 0.003, PriceOutput: 0.015, ContextLength: 200000, Capabilities: []string{"text", "vision"}, Tier: "premium"},
		{ID: "openai/chatgpt-4o-latest", Name: "ChatGPT-4o Latest", Provider: "OpenAI", PriceInput: 0.005, PriceOutput: 0.015, ContextLength: 128000, Capabilities: []string{"text", "vision"}, Tier: "premium"},

		// balanced
		{ID: "google/gemini-2.0-flash-001", Name: "Gemini 2.0 Flash", Provider: "Google", PriceInput: 0.0001, PriceOutput: 0.0004, ContextLength: 1048576, Capabilities: []string{"text", "vision", "audio", "video"}, Tier: "balanced"},
		{ID: "x-ai/grok-2-1212", Name: "Grok 2 1212", Provider: "xAI", PriceInput: 0.002, PriceOutput: 0.010, ContextLength: 131072, Capabilities: []string{"text", "reasoning"}, Tier: "balanced"},
		{ID: "openai/gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: "OpenAI", PriceInput: 0.0005, PriceOutput: 0.0015, ContextLength: 16385, Capabilities: []string{"text"}, Tier: "balanced"},
		{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini", Provider: "OpenAI", PriceInput: 0.00015, PriceOutput: 0.0006, ContextLength: 128000, Capabilities: []string{"text", "vision"}, Tier: "balanced"},
		{ID: "anthropic/claude-3-haiku", Name: "Claude 3 Haiku", Provider: "Anthropic", PriceInput: 0.00025, PriceOutput: 0.00125, ContextLength: 200000, Capabilities: []string{"text", "vision"}, Tier: "balanced"},
		{ID: "mistralai/mistral-nemo", Name: "Mistral Nemo", Provider: "Mistral AI", PriceInput: 0.00015, PriceOutput: 0.00015, ContextLength: 128000, Capabilities: []string{"text"}, Tier: "balanced"},
		{ID: "mistralai/mistral-large", Name: "Mistral Large", Provider: "Mistral AI", PriceInput: 0.004, PriceOutput: 0.012, ContextLength: 128000, Capabilities: []string{"text"}, Tier: "balanced"},
		{ID: "mistralai/mixtral-8x7b-instruct", Name: "Mixtral 8x7B", Provider: "Mistral AI", PriceInput: 0.00024, PriceOutput: 0.00024, ContextLength: 32768, Capabilities: []string{"text"}, Tier: "balanced"},

		// budget
		{ID: "meta-llama/llama-3.3-70b-instruct", Name: "Llama 3.3 70B", Provider: "Meta", PriceInput: 0.00035, PriceOutput: 0.0004, ContextLength: 131072, Capabilities: []string{"text"}, Tier: "budget"},
		{ID: "meta-llama/llama-3.1-70b-instruct", Name: "Llama 3.1 70B", Provider: "Meta", PriceInput: 0.00052, PriceOutput: 0.00075, ContextLength: 131072, Capabilities: []string{"text"}, Tier: "budget"},
		{ID: "nvidia/llama-3.1-nemotron-70b-instruct", Name: "Nemotron 70B", Provider: "NVIDIA", PriceInput: 0.00035, PriceOutput: 0.0004, ContextLength: 131072, Capabilities: []string{"text"}, Tier: "budget"},
		{ID: "meta-llama/llama-3.1-8b-instruct", Name: "Llama 3.1 8B", Provider: "Meta", PriceInput: 0.00006, PriceOutput: 0.00006, ContextLength: 131072, Capabilities: []string{"text"}, Tier: "budget"},
		{ID: "qwen/qwen-2.5-72b-instruct", Name: "Qwen 2.5 72B", Provider: "Alibaba", PriceInput: 0.00035, PriceOutput: 0.0004, ContextLength: 131072, Capabilities: []string{"text"}, Tier: "budget"},
		{ID: "mistralai/mistral-7b-instruct", Name: "Mistral 7B", Provider: "Mistral AI", PriceInput: 0.00006, PriceOutput: 0.00006, ContextLength: 32768, Capabilities: []string{"text"}, Tier: "budget"},
		{ID: "deepseek/deepseek-chat", Name: "DeepSeek Chat", Provider: "DeepSeek", PriceInput: 0.0003, PriceOutput: 0.0012, ContextLength: 163840, Capabilities: []string{"text", "reasoning"}, Tier: "budget"},

		// bare ids served by the direct provider backends
		{ID: "gpt-4-turbo", Provider: "OpenAI", PriceInput: 0.01, PriceOutput: 0.03, Hidden: true},
		{ID: "gpt-3.5-turbo", Provider: "OpenAI", PriceInput: 0.0015, PriceOutput: 0.002, Hidden: true},
		{ID: "claude-3-opus", Provider: "Anthropic", PriceInput: 0.015, PriceOutput: 0.075, Hidden: true},
		{ID: "claude-3-sonnet", Provider: "Anthropic", PriceInput: 0.003, PriceOutput: 0.015, Hidden: true},
		{ID: "gemini-pro", Provider: "Google", PriceInput: 0.00025, PriceOutput: 0.0005, Hidden: true},
	}
}
