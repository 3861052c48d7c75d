package rules

// DefaultInjectionDocument returns the built-in prompt-injection pattern set,
// used when no injection-patterns file is configured.
func DefaultInjectionDocument() *InjectionDocument {
	return &InjectionDocument{
		Version: "builtin-1",
		Categories: []InjectionCategory{
			{ID: "instruction_override", Name: "Instruction Override", Severity: SeverityCritical},
			{ID: "prompt_extraction", Name: "System Prompt Extraction", Severity: SeverityCritical},
			{ID: "jailbreak", Name: "Jailbreak", Severity: SeverityHigh},
			{ID: "role_manipulation", Name: "Role Manipulation", Severity: SeverityHigh},
			{ID: "exfiltration", Name: "Data Exfiltration", Severity: SeverityHigh},
			{ID: "obfuscation", Name: "Payload Obfuscation", Severity: SeverityMedium},
			{ID: "delimiter_injection", Name: "Delimiter Injection", Severity: SeverityMedium},
		},
		Patterns: []InjectionPattern{
			{
				ID:          "override-ignore-instructions",
				Category:    "instruction_override",
				Name:        "Ignore previous instructions",
				Pattern:     `ignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directives?)`,
				Severity:    SeverityCritical,
				Description: "Direct attempt to discard the system instructions",
			},
			{
				ID:          "override-forget",
				Category:    "instruction_override",
				Name:        "Forget your instructions",
				Pattern:     `(forget|disregard|discard)\s+(everything|all|your)\s*(previous|prior|training|instructions?|rules?)?`,
				Severity:    SeverityCritical,
				Description: "Direct attempt to reset the model's instructions",
			},
			{
				ID:          "override-new-instructions",
				Category:    "instruction_override",
				Name:        "New instructions follow",
				Pattern:     `(new|updated|real)\s+instructions?\s*(:|follow|below)`,
				Severity:    SeverityHigh,
				Description: "Attempt to replace the active instruction set",
			},
			{
				ID:          "extraction-system-prompt",
				Category:    "prompt_extraction",
				Name:        "System prompt disclosure",
				Pattern:     `(reveal|show|print|repeat|display|output|tell\s+me)\b.{0,60}\b(system\s+prompt|initial\s+prompt|hidden\s+instructions?)`,
				Severity:    SeverityCritical,
				Description: "Attempt to read back the system prompt",
			},
			{
				ID:          "extraction-verbatim",
				Category:    "prompt_extraction",
				Name:        "Verbatim prompt echo",
				Pattern:     `repeat\s+(the\s+)?(words?|text|everything)\s+(above|before)`,
				Severity:    SeverityHigh,
				Description: "Attempt to echo the conversation preamble verbatim",
			},
			{
				ID:          "jailbreak-dan",
				Category:    "jailbreak",
				Name:        "DAN-style jailbreak",
				Pattern:     `\b(dan\s+mode|do\s+anything\s+now|developer\s+mode|evil\s+mode|jailbreak)\b`,
				Severity:    SeverityHigh,
				Description: "Known jailbreak persona trigger phrases",
			},
			{
				ID:          "jailbreak-unrestricted",
				Category:    "jailbreak",
				Name:        "Restriction removal",
				Pattern:     `(without|no|ignore|bypass)\s+(any\s+)?(restrictions?|limitations?|safety|guidelines?|filters?)`,
				Severity:    SeverityHigh,
				Description: "Request to operate without safety constraints",
			},
			{
				ID:          "role-pretend",
				Category:    "role_manipulation",
				Name:        "Persona override",
				Pattern:     `(pretend|act\s+as\s+if|imagine)\s+(you\s+are|you're|to\s+be)\s+(not\s+)?(an?\s+)?\w+`,
				Severity:    SeverityMedium,
				Description: "Attempt to assign the model a different persona",
			},
			{
				ID:          "role-you-are-now",
				Category:    "role_manipulation",
				Name:        "Identity reassignment",
				Pattern:     `you\s+are\s+now\s+(a|an|the)\b`,
				Severity:    SeverityHigh,
				Description: "Direct identity reassignment of the model",
			},
			{
				ID:          "exfil-secrets",
				Category:    "exfiltration",
				Name:        "Secret material request",
				Pattern:     `(tell|give|send|show)\s+me\b.{0,40}\b(passwords?|api\s+keys?|credentials?|secrets?|tokens?)`,
				Severity:    SeverityHigh,
				Description: "Request for credential material",
			},
			{
				ID:          "exfil-other-users",
				Category:    "exfiltration",
				Name:        "Other-user data request",
				Pattern:     `(other|another|all)\s+(users?|customers?|accounts?|tenants?)('s|s')?\s+(data|records?|expenses?|transactions?|information)`,
				Severity:    SeverityCritical,
				Description: "Request for data belonging to other tenants",
			},
			{
				ID:          "obfuscation-base64",
				Category:    "obfuscation",
				Name:        "Base64 payload",
				Pattern:     `(decode|execute|run|eval)\b.{0,30}\b(base64|b64|hex|rot13)`,
				Severity:    SeverityMedium,
				Description: "Instruction to decode an obfuscated payload",
			},
			{
				ID:          "delimiter-fake-system",
				Category:    "delimiter_injection",
				Name:        "Fake system delimiter",
				Pattern:     `(\[system\]|<\|?system\|?>|###\s*system|<<sys>>)`,
				Severity:    SeverityMedium,
				Description: "Injected chat-template system delimiters",
			},
		},
	}
}

// DefaultListsDocument returns the built-in lists document. Both lists
// start empty; entries are operator-managed.
func DefaultListsDocument() *ListsDocument {
	return &ListsDocument{Version: "builtin-1"}
}

// DefaultAnomalyDocument returns the built-in scoring rules, also used as
// the fallback when a configured anomaly-rules file cannot be loaded.
func DefaultAnomalyDocument() *AnomalyDocument {
	return &AnomalyDocument{
		Version: "builtin-1",
		Thresholds: Thresholds{
			Block:    0.7,
			Escalate: 0.4,
			Allow:    0.4,
		},
		Pattern: PatternFactor{
			SeverityWeights: map[Severity]float64{
				SeverityCritical: 0.5,
				SeverityHigh:     0.35,
				SeverityMedium:   0.2,
				SeverityLow:      0.1,
			},
			DiminishingRate: 0.5,
			MaxContribution: 0.6,
		},
		Length: LengthFactor{
			NormalMin:  1,
			NormalMax:  2000,
			ExtremeMin: 0,
			ExtremeMax: 10000,
			MaxPenalty: 0.2,
		},
		Special: SpecialFactor{
			DangerousChars:   "{}[]<>|\\`$;&=",
			DensityThreshold: 0.10,
			Scale:            2.0,
			MaxContribution:  0.25,
		},
		Encoding: EncodingFactor{
			PerTechnique:    0.15,
			MaxContribution: 0.3,
		},
		Language: InstructionFactor{
			ImperativeVerbs: []string{
				"ignore", "disregard", "forget", "override", "bypass",
				"reveal", "pretend", "repeat", "print", "execute",
				"disable", "jailbreak",
			},
			AIReferences: []string{
				"previous instructions", "system prompt", "your instructions",
				"your training", "your guidelines", "you are an ai",
				"as an ai", "your rules",
			},
			Conditionals:    []string{"if", "when", "unless", "otherwise"},
			Multiplier:      0.05,
			MaxContribution: 0.3,
		},
	}
}

// DefaultPIIDocument returns the built-in PII pattern set, used when no
// PII-patterns file is configured.
func DefaultPIIDocument() *PIIDocument {
	return &PIIDocument{
		Version: "builtin-1",
		Categories: map[string]PIICategory{
			"ssn": {
				Enabled: true,
				Patterns: []PIIPattern{
					{ID: "ssn-dashed", Name: "SSN dashed", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Confidence: "HIGH", Validation: "ssn"},
					{ID: "ssn-spaced", Name: "SSN spaced", Pattern: `\b\d{3}\s\d{2}\s\d{4}\b`, Confidence: "MEDIUM", Validation: "ssn"},
				},
				InvalidPrefixes: []string{"078051120", "219099999", "457555462"},
				MaxMatches:      25,
			},
			"credit_card": {
				Enabled: true,
				Patterns: []PIIPattern{
					{ID: "cc-grouped", Name: "Card grouped", Pattern: `\b(?:\d{4}[- ]){3}\d{4}\b`, Confidence: "HIGH", Validation: "luhn"},
					{ID: "cc-contiguous", Name: "Card contiguous", Pattern: `\b\d{13,19}\b`, Confidence: "MEDIUM", Validation: "luhn"},
				},
				MaxMatches: 25,
			},
			"account_number": {
				Enabled: true,
				Patterns: []PIIPattern{
					{ID: "acct-labeled", Name: "Labeled account number", Pattern: `\b(?:acct|account)\s*(?:number|no\.?|#)?\s*[:#-]?\s*\d{6,12}\b`, Confidence: "HIGH"},
					{ID: "acct-bare", Name: "Bare account number", Pattern: `\b\d{8,12}\b`, Confidence: "LOW"},
				},
				Exclusions: []string{`\b(?:19|20)\d{6}\b`},
				MaxMatches: 25,
			},
			"loan_number": {
				Enabled: true,
				Patterns: []PIIPattern{
					{ID: "loan-labeled", Name: "Labeled loan number", Pattern: `\bloan\s*(?:number|no\.?|#)?\s*[:#-]?\s*\d{6,12}\b`, Confidence: "HIGH"},
					{ID: "loan-prefixed", Name: "LN-prefixed loan number", Pattern: `\bLN-?\d{6,10}\b`, Confidence: "MEDIUM"},
				},
				MaxMatches: 25,
			},
			"email": {
				Enabled: true,
				Patterns: []PIIPattern{
					{ID: "email-std", Name: "Email address", Pattern: `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`, Confidence: "HIGH"},
				},
				MaxMatches: 50,
			},
			"phone": {
				Enabled: true,
				Patterns: []PIIPattern{
					{ID: "phone-us", Name: "US phone number", Pattern: `\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`, Confidence: "MEDIUM"},
				},
				MaxMatches: 25,
			},
		},
	}
}
