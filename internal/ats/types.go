package ats

// Wire types for the ATS REST surface. Field names follow the upstream JSON.

type restLoginResponse struct {
	RestToken string `json:"BhRestToken"`
	RestURL   string `json:"restUrl"`
}

type namedEntity struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

type addressEntity struct {
	Address1  string `json:"address1"`
	City      string `json:"city"`
	State     string `json:"state"`
	CountryID int    `json:"countryID"`
	Country   string `json:"countryName"`
}

type jobOrderEntity struct {
	ID                int            `json:"id"`
	Title             string         `json:"title"`
	PublicDescription string         `json:"publicDescription"`
	Address           addressEntity  `json:"address"`
	OnSite            string         `json:"onSite"`
	Status            string         `json:"status"`
	DateAdded         int64          `json:"dateAdded"` // epoch millis
	Owner             namedEntity    `json:"owner"`
	ResponseUser      *namedEntity   `json:"responseUser"`
	AssignedUsers     assignedUsers  `json:"assignedUsers"`
}

type assignedUsers struct {
	Total int           `json:"total"`
	Data  []namedEntity `json:"data"`
}

type jobOrderPage struct {
	Total int              `json:"total"`
	Start int              `json:"start"`
	Count int              `json:"count"`
	Data  []jobOrderEntity `json:"data"`
}

type candidateEntity struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type candidateResponse struct {
	Data candidateEntity `json:"data"`
}

type submissionEntity struct {
	ID        int             `json:"id"`
	Candidate candidateEntity `json:"candidate"`
	JobOrder  struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"jobOrder"`
	Status    string `json:"status"`
	DateAdded int64  `json:"dateAdded"`
}

type submissionPage struct {
	Total int                `json:"total"`
	Data  []submissionEntity `json:"data"`
}

type fileAttachmentEntity struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
	DateAdded   int64  `json:"dateAdded"`
}

type fileAttachmentPage struct {
	Data []fileAttachmentEntity `json:"data"`
}

type notePayload struct {
	Comments        string `json:"comments"`
	Action          string `json:"action"`
	PersonReference struct {
		ID int `json:"id"`
	} `json:"personReference"`
}
