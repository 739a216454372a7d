package matching

// Vocabulary は正規化に使う語彙設定。不変の値としてNormalizerに注入する
// テストでは代替語彙を渡して決定的に検証できる
type Vocabulary struct {
	// Synonyms は建設用語の同義語を代表語へ畳み込むマップ
	Synonyms map[string]string
	// StopWords は比較から除外する一般語の集合
	StopWords map[string]struct{}
	// Units は数量の後に現れる単位語（"12mm" や "5 m" の除去に使う）
	Units []string
	// KeyTerms はキーワード抽出で重視する建設用語の集合
	KeyTerms map[string]struct{}
}

// DefaultVocabulary は組み込みの建設ドメイン語彙を返す
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Synonyms:  defaultSynonyms(),
		StopWords: defaultStopWords(),
		Units:     []string{"mm", "cm", "m", "inch", "in", "ft"},
		KeyTerms:  defaultKeyTerms(),
	}
}

func defaultSynonyms() map[string]string {
	return map[string]string{
		// 建材
		"bricks": "brick", "brickwork": "brick", "blocks": "brick", "blockwork": "brick",
		"masonry": "brick", "stonework": "stone", "tiles": "tile", "tiling": "tile",
		"pavers": "paver", "paving": "paver", "slabs": "slab", "flagstone": "stone",

		// コンクリート・セメント
		"cement": "concrete", "mortar": "concrete", "grout": "concrete",
		"screed": "concrete", "render": "concrete", "stucco": "plaster", "skim": "plaster",

		// 基礎
		"footing": "foundation", "footings": "foundation", "foundations": "foundation",
		"basement": "foundation", "substructure": "foundation",

		// 掘削・土工
		"excavation": "excavate", "excavations": "excavate", "dig": "excavate",
		"digging": "excavate", "earthwork": "excavate", "trenching": "excavate",
		"backfill": "fill", "backfilling": "fill", "filling": "fill",

		// 設置・施工
		"installation": "install", "installing": "install", "installed": "install",
		"construction": "build", "building": "build", "erection": "install",
		"assembly": "install", "fitting": "install", "fix": "install",
		"fixing": "install", "mount": "install", "mounting": "install",

		// 解体・撤去
		"demolition": "demolish", "demolishing": "demolish", "remove": "demolish",
		"removal": "demolish", "dismantle": "demolish", "dismantling": "demolish",

		// 供給
		"supply": "provide", "supplies": "provide", "providing": "provide",
		"furnish": "provide", "deliver": "provide", "procurement": "provide",

		// 仕上げ
		"painting": "paint", "plastering": "plaster", "flooring": "floor",
		"roofing": "roof", "cladding": "clad", "insulation": "insulate",
		"waterproofing": "waterproof", "dampproof": "waterproof",

		// 設備
		"electrical": "electric", "plumbing": "plumb", "sanitary": "plumb",
		"heating": "heat", "cooling": "cool", "ventilation": "ventilate",
		"drainage": "drain",

		// 構造
		"reinforcement": "reinforce", "steelwork": "steel", "formwork": "form",
		"shuttering": "shutter", "framework": "frame", "structural": "structure",
		"girder": "beam",

		// 汎用材料
		"timber": "wood", "lumber": "wood", "iron": "metal",
		"aluminum": "metal", "aluminium": "metal", "copper": "metal",
	}
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"the", "and", "of", "to", "in", "for", "on", "at", "by", "from", "with",
		"a", "an", "be", "is", "are", "as", "it", "its", "into", "or", "this",
		"that", "will", "shall", "would", "could", "should", "may", "might",
		"per", "each", "all", "any", "some", "no", "not", "only", "such",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func defaultKeyTerms() map[string]struct{} {
	terms := []string{
		"concrete", "steel", "brick", "block", "paint", "plaster",
		"tile", "door", "window", "pipe", "wire", "cable", "beam",
		"column", "slab", "foundation", "wall", "floor", "ceiling",
		"roof", "reinforce", "excavate", "form",
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}
