package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"dyntables/internal/codec"
	"dyntables/internal/domain"
	"dyntables/internal/metrics"
)

// ─────────────────────────────────────────────────────────────
// Table Provisioner: keeps wide tables in step with their metadata
// ─────────────────────────────────────────────────────────────

// TableProcedures are the backend operations on wide tables.
// *storage.Procedures implements them.
type TableProcedures interface {
	PhysicalColumns(ctx context.Context, table string) ([]string, error)
	EnsureTable(ctx context.Context, table string) (bool, error)
	AddColumn(ctx context.Context, table, column string, st codec.StorageType) (bool, error)
	DropColumn(ctx context.Context, table, column string) (bool, error)
	DropTable(ctx context.Context, table string) error
}

// ColumnChange reports which halves of a column mutation did work.
type ColumnChange struct {
	Column          domain.ColumnDef `json:"column"`
	PhysicalChanged bool             `json:"physicalChanged"`
	MetadataChanged bool             `json:"metadataChanged"`
}

// ConsistencyReport compares a database's metadata with its wide table.
type ConsistencyReport struct {
	DatabaseID  string `json:"databaseId"`
	TableExists bool   `json:"tableExists"`
	// Column ids present in metadata without a physical column.
	MissingPhysical []string `json:"missingPhysical,omitempty"`
	// Physical columns no metadata entry maps to.
	Orphaned []string `json:"orphaned,omitempty"`
}

// Consistent reports whether metadata and table agree.
func (r ConsistencyReport) Consistent() bool {
	return len(r.MissingPhysical) == 0 && len(r.Orphaned) == 0
}

// Provisioner creates wide tables lazily and applies column mutations,
// physical side first.
type Provisioner struct {
	schemas domain.SchemaStore
	procs   TableProcedures
	reload  SchemaReloader
	waiter  *Waiter
	log     *zap.SugaredLogger
}

// NewProvisioner creates a Provisioner. reload may be nil.
func NewProvisioner(schemas domain.SchemaStore, procs TableProcedures, reload SchemaReloader, waiter *Waiter, log *zap.SugaredLogger) *Provisioner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Provisioner{schemas: schemas, procs: procs, reload: reload, waiter: waiter, log: log}
}

func (p *Provisioner) reloadSchema(ctx context.Context, table string) {
	if p.reload != nil {
		p.reload.ReloadSchema(ctx, table)
	}
}

// EnsureTableExists creates the wide table of a database when it is
// missing. It is a no-op for an existing table.
func (p *Provisioner) EnsureTableExists(ctx context.Context, databaseID string) (*domain.LogicalDatabase, error) {
	db, err := resolveDatabase(ctx, p.schemas, "ensure table", databaseID)
	if err != nil {
		return nil, err
	}
	if err := p.ensureTable(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (p *Provisioner) ensureTable(ctx context.Context, db *domain.LogicalDatabase) error {
	created, err := p.procs.EnsureTable(ctx, db.TableName)
	if err != nil {
		return err
	}
	if created {
		p.log.Infof("provisioner: created table %s for database %s", db.TableName, db.ID)
		p.reloadSchema(ctx, db.TableName)
	}
	return nil
}

// AddColumn adds def to the wide table, then to the metadata. When the
// physical column already exists the ALTER is skipped and only the
// metadata is written, which repairs an earlier half-finished add.
func (p *Provisioner) AddColumn(ctx context.Context, databaseID string, def domain.ColumnDef) (*ColumnChange, error) {
	if def.ID == "" {
		def.ID = codec.NewColumnID()
	}
	if err := codec.ValidateColumnID(def.ID); err != nil {
		return nil, domain.Validation("add column", "%v", err).WithDatabase(databaseID).WithColumn(def.ID)
	}
	if def.Type == "" {
		def.Type = domain.ColTypeText
	}

	db, err := p.EnsureTableExists(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	change := &ColumnChange{Column: def}
	if existing, ok := db.Column(def.ID); ok {
		change.Column = existing
		def = existing
	}

	name := codec.EncodeColumn(def.ID)
	physical, err := p.procs.PhysicalColumns(ctx, db.TableName)
	if err != nil {
		return nil, err
	}
	if contains(physical, name) {
		p.log.Infof("provisioner: %s.%s already exists, skipping alter", db.TableName, name)
	} else {
		added, err := p.procs.AddColumn(ctx, db.TableName, name, codec.StorageFor(def.Type))
		if err != nil {
			return nil, err
		}
		change.PhysicalChanged = added
		p.reloadSchema(ctx, db.TableName)
	}

	_, err = mutateColumns(ctx, p.schemas, databaseID, func(cur *domain.LogicalDatabase) ([]domain.ColumnDef, bool, error) {
		if existing, ok := cur.Column(def.ID); ok {
			change.Column = existing
			change.MetadataChanged = false
			return nil, false, nil
		}
		cols := cloneColumns(cur.Columns)
		col := def
		col.Order = nextOrder(cols)
		change.Column = col
		change.MetadataChanged = true
		return append(cols, col), true, nil
	})
	if err != nil {
		p.log.Errorf("provisioner: metadata write for %s.%s failed after physical add: %v", db.TableName, name, err)
		return nil, err
	}
	return change, nil
}

func nextOrder(cols []domain.ColumnDef) int {
	max := -1
	for _, c := range cols {
		if c.Order > max {
			max = c.Order
		}
	}
	return max + 1
}

// DropColumn drops the physical column, then removes the metadata entry.
// The column's data cannot be recovered.
func (p *Provisioner) DropColumn(ctx context.Context, databaseID, columnID string) (*ColumnChange, error) {
	db, err := resolveDatabase(ctx, p.schemas, "drop column", databaseID)
	if err != nil {
		return nil, err
	}
	def, inMetadata := db.Column(columnID)
	if !inMetadata {
		if codec.ValidateColumnID(columnID) != nil {
			return nil, domain.NotFound("drop column", "column", columnID).WithDatabase(databaseID)
		}
		def = domain.ColumnDef{ID: columnID}
	}

	change := &ColumnChange{Column: def}
	dropped, err := p.procs.DropColumn(ctx, db.TableName, codec.EncodeColumn(columnID))
	if err != nil {
		return nil, err
	}
	change.PhysicalChanged = dropped
	if dropped {
		p.reloadSchema(ctx, db.TableName)
	}
	if !inMetadata && !dropped {
		return nil, domain.NotFound("drop column", "column", columnID).WithDatabase(databaseID)
	}

	_, err = mutateColumns(ctx, p.schemas, databaseID, func(db *domain.LogicalDatabase) ([]domain.ColumnDef, bool, error) {
		cols := make([]domain.ColumnDef, 0, len(db.Columns))
		for _, c := range db.Columns {
			if c.ID != columnID {
				cols = append(cols, c)
			}
		}
		if len(cols) == len(db.Columns) {
			return nil, false, nil
		}
		change.MetadataChanged = true
		return cols, true, nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// DropTable removes the wide table of db.
func (p *Provisioner) DropTable(ctx context.Context, db *domain.LogicalDatabase) error {
	if err := p.procs.DropTable(ctx, db.TableName); err != nil {
		return err
	}
	p.reloadSchema(ctx, db.TableName)
	return nil
}

// SyncPhysicalColumns adds the physical column of every metadata column
// that lacks one. It returns the physical names it added.
func (p *Provisioner) SyncPhysicalColumns(ctx context.Context, db *domain.LogicalDatabase) ([]string, error) {
	physical, err := p.procs.PhysicalColumns(ctx, db.TableName)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, c := range db.Columns {
		name := codec.EncodeColumn(c.ID)
		if contains(physical, name) {
			continue
		}
		ok, err := p.procs.AddColumn(ctx, db.TableName, name, codec.StorageFor(c.Type))
		if err != nil {
			return added, err
		}
		if ok {
			added = append(added, name)
		}
	}
	if len(added) > 0 {
		p.log.Infof("provisioner: added %d missing column(s) to %s", len(added), db.TableName)
		p.reloadSchema(ctx, db.TableName)
	}
	return added, nil
}

// Heal makes the wide table of db usable for row operations: it creates
// the table and any missing columns, then waits until they are visible.
func (p *Provisioner) Heal(ctx context.Context, db *domain.LogicalDatabase) error {
	created, err := p.procs.EnsureTable(ctx, db.TableName)
	if err != nil {
		return err
	}
	if created {
		metrics.RecordLazyProvision("table")
		p.log.Infof("provisioner: lazily created table %s for database %s", db.TableName, db.ID)
	}
	added, err := p.SyncPhysicalColumns(ctx, db)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		metrics.RecordLazyProvision("column")
	}
	p.reloadSchema(ctx, db.TableName)

	if p.waiter != nil {
		cols := make([]string, 0, len(db.Columns))
		for _, c := range db.Columns {
			cols = append(cols, codec.EncodeColumn(c.ID))
		}
		if pending := Pending(p.waiter.WaitAll(ctx, db.TableName, cols)); len(pending) > 0 {
			p.log.Warnf("provisioner: %d column(s) of %s still not visible: %v", len(pending), db.TableName, pending)
		}
	}
	return nil
}

// VerifySchema reports metadata columns without a physical column and
// physical columns without metadata.
func (p *Provisioner) VerifySchema(ctx context.Context, databaseID string) (*ConsistencyReport, error) {
	db, err := resolveDatabase(ctx, p.schemas, "verify schema", databaseID)
	if err != nil {
		return nil, err
	}
	physical, err := p.procs.PhysicalColumns(ctx, db.TableName)
	if err != nil {
		return nil, err
	}
	report := &ConsistencyReport{DatabaseID: db.ID, TableExists: len(physical) > 0}
	if !report.TableExists {
		return report, nil
	}

	known := make(map[string]bool, len(db.Columns))
	for _, c := range db.Columns {
		name := codec.EncodeColumn(c.ID)
		known[name] = true
		if !contains(physical, name) {
			report.MissingPhysical = append(report.MissingPhysical, c.ID)
		}
	}
	for _, name := range physical {
		if codec.IsReserved(name) || known[name] {
			continue
		}
		report.Orphaned = append(report.Orphaned, name)
	}
	sort.Strings(report.Orphaned)
	return report, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
