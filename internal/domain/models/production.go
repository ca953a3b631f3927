package models

// Department tags carried by stage types.
const (
	DepartmentSMD     = "SMD"
	DepartmentPTH     = "PTH"
	DepartmentControl = "CONTROLLO"
	DepartmentOther   = "ALTRO"
)

// Stage status values.
const (
	StageOpen       = "APERTA"
	StageInProgress = "IN_CORSO"
	StageClosed     = "CHIUSA"
	StageBlocked    = "BLOCCATA"
)

// List is the {items, total} envelope returned by every backend collection endpoint.
type List[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// Order is a customer order (commessa) read from the ERP.
type Order struct {
	ID           int     `json:"PROGRESSIVO"`
	Year         int     `json:"ESERCIZIO"`
	Number       int     `json:"NUMEROCOM"`
	ClientRef    *string `json:"RIFCOMMCLI"`
	ClientCode   *string `json:"CODCLIENTE"`
	ClientName   *string `json:"NomeCliente"`
	IssuedAt     *Time   `json:"DATAEMISSIONE"`
	PlanStartAt  *Time   `json:"DATAINIZIOPIANO"`
	PlanEndAt    *Time   `json:"DATAFINEPIANO"`
	ClosedFlag   int     `json:"STATOCHIUSO"`
	Annotations  *string `json:"ANNOTAZIONI"`
	ArticleCode  *string `json:"CODART,omitempty"`
	ArticleDescr *string `json:"DESCRIZIONEART,omitempty"`
}

// Closed reports whether the ERP marks the order as closed.
func (o Order) Closed() bool {
	return o.ClosedFlag != 0
}

// Batch is a production batch (lotto) worked against a single stage.
type Batch struct {
	ID         int     `json:"LottoID"`
	StageID    int     `json:"FaseID"`
	Sequence   int     `json:"Progressivo"`
	OperatorID *int    `json:"OperatoreID"`
	MachineID  *int    `json:"MacchinaID"`
	StartedAt  *Time   `json:"DataInizio"`
	EndedAt    *Time   `json:"DataFine"`
	QtyInput   *int    `json:"QtaInput"`
	QtyOutput  *int    `json:"QtaOutput"`
	QtyScrap   *int    `json:"QtaScarti"`
	FeederProg *string `json:"ProgrammaFeeder"`
	SetupMin   *int    `json:"TempoSetupMin"`
	ScrapType  *string `json:"TipoScarto"`
	ScrapNotes *string `json:"NoteScarti"`
	Notes      *string `json:"Note"`
}

// Open reports whether the batch has no end timestamp yet.
func (b Batch) Open() bool {
	return !Valid(b.EndedAt)
}

// Input resolves QtyInput, absent counts as zero.
func (b Batch) Input() int { return IntOrZero(b.QtyInput) }

// Output resolves QtyOutput, absent counts as zero.
func (b Batch) Output() int { return IntOrZero(b.QtyOutput) }

// Scrap resolves QtyScrap, absent counts as zero.
func (b Batch) Scrap() int { return IntOrZero(b.QtyScrap) }

// Stage is a process stage (fase) of an order.
type Stage struct {
	ID            int     `json:"FaseID"`
	OrderERPID    int     `json:"CommessaERPId"`
	OrderConfigID *int    `json:"ConfigCommessaID"`
	StageTypeID   int     `json:"FaseTipoID"`
	OrderNumber   *string `json:"NumeroCommessa"`
	Status        string  `json:"Stato"`
	Completed     bool    `json:"Completata"`
	CreatedAt     *Time   `json:"DataCreazione"`
	UpdatedAt     *Time   `json:"DataModifica"`
	OpenedAt      *Time   `json:"DataApertura"`
	ClosedAt      *Time   `json:"DataChiusura"`
	Quantity      *int    `json:"Quantita"`
	QtyPlanned    *int    `json:"QtaPrevista"`
	QtyProduced   *int    `json:"QtaProdotta"`
	QtyResidual   *int    `json:"QtaResidua"`
	Notes         *string `json:"Note"`
}

// StageType is the static template describing which department a stage belongs to.
type StageType struct {
	ID           int     `json:"FaseTipoID"`
	Code         string  `json:"Codice"`
	Description  string  `json:"Descrizione"`
	Department   string  `json:"Tipo"`
	NeedsSerial  bool    `json:"RichiedeSeriale"`
	NeedsControl bool    `json:"RichiedeControllo"`
	DisplayOrder int     `json:"OrdineVisualizzazione"`
	Active       bool    `json:"Attivo"`
	Notes        *string `json:"Note,omitempty"`
}

// Operator is a shop-floor user (utente).
type Operator struct {
	ID         int     `json:"UtenteID"`
	Username   string  `json:"Username"`
	FullName   string  `json:"NomeCompleto"`
	Email      *string `json:"Email"`
	Department *string `json:"Reparto"`
	Role       *string `json:"Ruolo"`
	Active     bool    `json:"Attivo"`
	CreatedAt  *Time   `json:"DataCreazione"`
}

// DisplayName prefers the full name and falls back to the username.
func (o Operator) DisplayName() string {
	if o.FullName != "" {
		return o.FullName
	}
	return o.Username
}

// Machine is a production machine (macchina).
type Machine struct {
	ID          int     `json:"MacchinaID"`
	Code        string  `json:"Codice"`
	Description *string `json:"Descrizione"`
	Department  string  `json:"Reparto"`
	Kind        *string `json:"Tipo"`
	Notes       *string `json:"Note"`
	Active      bool    `json:"Attiva"`
}

// OpenBatchRequest is the payload to open a new batch on a stage.
type OpenBatchRequest struct {
	StageID    int     `json:"FaseID" binding:"required"`
	OperatorID *int    `json:"OperatoreID,omitempty"`
	MachineID  *int    `json:"MacchinaID,omitempty"`
	QtyInput   *int    `json:"QtaInput,omitempty"`
	FeederProg *string `json:"ProgrammaFeeder,omitempty"`
	SetupMin   *int    `json:"TempoSetupMin,omitempty"`
	Notes      *string `json:"Note,omitempty"`
}

// CloseBatchRequest records the final yield/scrap figures of a batch. Output
// is mandatory; scrap defaults to zero.
type CloseBatchRequest struct {
	QtyOutput *int    `json:"QtaOutput" binding:"required"`
	QtyScrap  int     `json:"QtaScarti"`
	Notes     *string `json:"Note,omitempty"`
}
