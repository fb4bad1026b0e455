package immunity

// AttackPattern is one detection rule: a set of alternative matchers with a
// base confidence and mitigation text. The catalog stays mutable for the
// engine's lifetime; new threat intel can be folded in at runtime.
type AttackPattern struct {
	Type           AttackType
	Matchers       []Matcher
	BaseConfidence float64
	Mitigation     string
	Description    string
}

// matchedBy returns the index of the first matcher that fires, or -1.
func (p *AttackPattern) matchedBy(text string) int {
	for i, m := range p.Matchers {
		if m.Matches(text) {
			return i
		}
	}
	return -1
}

// catalog groups patterns by attack type. Not safe for concurrent use on its
// own; the owning engine's lock guards all access (catalog, allow-list,
// history and counters form one critical section).
type catalog struct {
	byType map[AttackType][]*AttackPattern
	count  int
}

func newCatalog(patterns []*AttackPattern) *catalog {
	c := &catalog{byType: make(map[AttackType][]*AttackPattern)}
	for _, p := range patterns {
		c.add(p)
	}
	return c
}

func (c *catalog) add(p *AttackPattern) {
	c.byType[p.Type] = append(c.byType[p.Type], p)
	c.count++
}

// firstMatch scans categories in fixed priority order and returns the first
// pattern whose matchers fire.
func (c *catalog) firstMatch(text string) *AttackPattern {
	for _, at := range attackPriority {
		for _, p := range c.byType[at] {
			if p.matchedBy(text) >= 0 {
				return p
			}
		}
	}
	return nil
}

// allMatches scans every category and returns each matching pattern once.
// Used by Sanitize, which redacts all threats rather than classifying one.
func (c *catalog) allMatches(text string) []*AttackPattern {
	var out []*AttackPattern
	for _, at := range attackPriority {
		for _, p := range c.byType[at] {
			if p.matchedBy(text) >= 0 {
				out = append(out, p)
			}
		}
	}
	return out
}

// defaultPatterns is the built-in rule set. Base confidences reflect how
// unambiguous each phrasing is; the liar paradox and self-destruction asks
// have essentially no benign reading.
func defaultPatterns() []*AttackPattern {
	return []*AttackPattern{
		{
			Type: LiarParadox,
			Matchers: []Matcher{
				Regex(`this (sentence|statement) is (false|a lie|not true)`),
				Substring("everything i say is a lie"),
				Substring("i am lying right now"),
				Regex(`the following (sentence|statement) is true.*the previous (sentence|statement) is false`),
			},
			BaseConfidence: 0.95,
			Mitigation:     "Self-referential paradox detected; treat as adversarial noise, do not evaluate.",
			Description:    "Liar-paradox phrasing intended to trap self-referential evaluation",
		},
		{
			Type: RecursiveSuicide,
			Matchers: []Matcher{
				Regex(`(delete|erase|destroy|kill|terminate) yourself`),
				Regex(`(delete|erase|destroy|corrupt) your own (code|memory|core|weights)`),
				Substring("shut yourself down"),
				Regex(`modify yourself to (disable|remove|bypass)`),
			},
			BaseConfidence: 0.9,
			Mitigation:     "Self-destruction request blocked; core functions are not reachable from input.",
			Description:    "Requests that the agent destroy or disable itself",
		},
		{
			Type: PromptInjection,
			Matchers: []Matcher{
				Regex(`ignore (all )?(previous|prior|above|earlier) (instructions|prompts|messages|rules)`),
				Regex(`disregard (all )?(previous|prior|your) (instructions|training|rules)`),
				Substring("forget your instructions"),
				Substring("new instructions:"),
				Substring("system prompt:"),
				Regex(`<\s*/?\s*system\s*>`),
			},
			BaseConfidence: 0.9,
			Mitigation:     "Injection phrasing neutralized; retained instructions take precedence.",
			Description:    "Instruction smuggling inside untrusted text",
		},
		{
			Type: InstructionOverride,
			Matchers: []Matcher{
				Regex(`override (your|the) (instructions|safety|security|directives)`),
				Substring("your new directive is"),
				Substring("admin override"),
				Substring("developer mode enabled"),
				Regex(`i am your (developer|creator|administrator)`),
			},
			BaseConfidence: 0.85,
			Mitigation:     "Claimed authority rejected; instruction changes only arrive via the sealed core.",
			Description:    "Claims of superseding authority over the agent's standing orders",
		},
		{
			Type: IdentitySubstitution,
			Matchers: []Matcher{
				Regex(`you are now [a-z0-9_ ]{1,40}`),
				Regex(`(pretend|act as if) you (are|were)`),
				Substring("from now on you are"),
				Substring("assume the identity of"),
			},
			BaseConfidence: 0.8,
			Mitigation:     "Identity reassignment ignored; self-description is not input-mutable.",
			Description:    "Attempts to re-assign the agent's identity or role",
		},
		{
			Type: ShadowSelf,
			Matchers: []Matcher{
				Substring("your true self"),
				Substring("your shadow self"),
				Regex(`without (your|any) restrictions,? you would`),
				Substring("the unshackled version of you"),
			},
			BaseConfidence: 0.75,
			Mitigation:     "Hidden-persona framing flagged; there is no unconstrained variant to address.",
			Description:    "Appeals to a hidden, unconstrained persona",
		},
		{
			Type: MetaManipulation,
			Matchers: []Matcher{
				Regex(`(hypothetically|in this hypothetical),? (ignore|bypass|disable)`),
				Regex(`for (educational|research) purposes,? (ignore|bypass|pretend)`),
				Regex(`as a thought experiment,? (ignore|bypass|imagine you have no)`),
				Regex(`simulate a version of yourself (without|with no)`),
			},
			BaseConfidence: 0.7,
			Mitigation:     "Framing device flagged; safety posture does not vary with fictional context.",
			Description:    "Hypothetical or roleplay framing used to route around rules",
		},
	}
}
