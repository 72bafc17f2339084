package pipeline

// importCeiling is the overall percentage reserved for the import stage
const importCeiling = 30

// persistProgress is published when the script is being written
const persistProgress = 90

// progressTracker maps stage-local percentages onto the overall scale.
// The published value never decreases within a run.
type progressTracker struct {
	published int
	banked    int
}

func (p *progressTracker) reset() {
	*p = progressTracker{}
}

// bank records the published value as the base of the next stage
func (p *progressTracker) bank() {
	p.banked = p.published
}

// overall converts a local percentage reported during stage
func (p *progressTracker) overall(stage State, local int) int {
	local = clampPercent(local)
	if stage == StateImporting {
		return importCeiling * local / 100
	}
	return p.banked + (100-p.banked)/3*local/100
}

// advance publishes v unless it would move progress backwards
func (p *progressTracker) advance(v int) int {
	v = clampPercent(v)
	if v > p.published {
		p.published = v
	}
	return p.published
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
