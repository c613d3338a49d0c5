package partsdb

const VectorDimensions = 768

const schema = `
CREATE TABLE IF NOT EXISTS catalog_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS parts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ps_number TEXT NOT NULL UNIQUE,
    part_name TEXT NOT NULL,
    part_type TEXT DEFAULT '',
    manufacturer_part_number TEXT DEFAULT '',
    part_manufacturer TEXT DEFAULT '',
    part_price REAL DEFAULT 0,
    part_description TEXT DEFAULT '',
    install_difficulty TEXT DEFAULT '',
    install_time TEXT DEFAULT '',
    install_video_url TEXT DEFAULT '',
    average_rating REAL DEFAULT 0,
    num_reviews INTEGER DEFAULT 0,
    appliance_type TEXT DEFAULT '',
    brand TEXT DEFAULT '',
    availability TEXT DEFAULT '',
    part_url TEXT DEFAULT '',
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_parts_mpn ON parts(manufacturer_part_number);
CREATE INDEX IF NOT EXISTS idx_parts_appliance ON parts(appliance_type, part_type);

CREATE TABLE IF NOT EXISTS model_compatibility (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ps_number TEXT NOT NULL,
    model_number TEXT NOT NULL,
    model_key TEXT NOT NULL,
    brand TEXT DEFAULT '',
    description TEXT DEFAULT '',
    UNIQUE(ps_number, model_key)
);

CREATE INDEX IF NOT EXISTS idx_compat_model ON model_compatibility(model_key);

CREATE TABLE IF NOT EXISTS repair_symptoms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    appliance_type TEXT NOT NULL,
    symptom TEXT NOT NULL,
    symptom_description TEXT DEFAULT '',
    percentage REAL DEFAULT 0,
    parts TEXT DEFAULT '[]',
    difficulty TEXT DEFAULT '',
    video_url TEXT DEFAULT '',
    symptom_url TEXT DEFAULT '',
    UNIQUE(appliance_type, symptom)
);

CREATE TABLE IF NOT EXISTS repair_instructions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    appliance_type TEXT NOT NULL,
    symptom TEXT NOT NULL,
    part_type TEXT NOT NULL,
    instructions TEXT DEFAULT '[]',
    part_category_url TEXT DEFAULT '',
    UNIQUE(appliance_type, symptom, part_type)
);

CREATE TABLE IF NOT EXISTS annotations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    ps_number TEXT NOT NULL,
    local_id TEXT NOT NULL,
    title TEXT DEFAULT '',
    body TEXT NOT NULL,
    author TEXT DEFAULT '',
    model_number TEXT DEFAULT '',
    difficulty TEXT DEFAULT '',
    repair_time TEXT DEFAULT '',
    rating REAL DEFAULT 0,
    helpful INTEGER DEFAULT 0,
    verified INTEGER DEFAULT 0,
    embedding BLOB,
    UNIQUE(kind, ps_number, local_id)
);

CREATE INDEX IF NOT EXISTS idx_annotations_part ON annotations(ps_number, kind);

-- unit-length float32 blobs, ranked with vec_distance_l2
CREATE TABLE IF NOT EXISTS part_vectors (
    part_id INTEGER PRIMARY KEY,
    embedding BLOB NOT NULL
);
`
