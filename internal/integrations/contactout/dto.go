package contactout

type person struct {
	ID           string   `json:"id"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Email        string   `json:"email"`
	PhoneNumbers []string `json:"phone_numbers"`
	LinkedInURL  string   `json:"linkedin_url"`
}

type searchResponse struct {
	People []person `json:"people"`
}

type personResponse struct {
	Person *person `json:"person"`
}
